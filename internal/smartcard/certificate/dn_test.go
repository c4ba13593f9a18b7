package certificate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfrid/pkg/testutil"
)

const dodListing = `Using slot 0 with a present token (0x0)
Certificate Object; type = X.509 cert
  label:      Certificate for PIV Authentication
  subject:    DN: C=US, O=U.S. Government, OU=DoD, OU=PKI, OU=USAF, CN=SHEKHON.JASKARAN.S.1643478010
  ID:         01
Certificate Object; type = X.509 cert
  label:      Certificate for Digital Signature
  subject:    DN: C=US, O=U.S. Government, OU=DoD, OU=PKI, OU=USN, CN=OTHER.PERSON.A.1111111111
  ID:         02
`

func TestParseListing(t *testing.T) {
	testutil.Given(t, "a DoD certificate listing", func(t *testing.T) {
		subject, ok := ParseListing([]byte(dodListing))

		testutil.Then(t, "the first subject is parsed", func(t *testing.T) {
			require.True(t, ok)
			assert.Equal(t, "SHEKHON", subject.LastName)
			assert.Equal(t, "JASKARAN", subject.FirstName)
			assert.Equal(t, "S", subject.MiddleInitial)
			assert.Equal(t, "USAF", subject.Branch)
			assert.Equal(t, "SHEKHON.JASKARAN.S.1643478010", subject.UID)
			assert.Equal(t, "JASKARAN SHEKHON", subject.FullName)
			assert.Equal(t, "U.S. Government", subject.Organization)
			assert.Equal(t, []string{"DoD", "PKI", "USAF"}, subject.OrganizationalUnits)
			assert.False(t, subject.Ambiguous)
		})
	})

	testutil.Given(t, "output without a DN marker", func(t *testing.T) {
		subject, ok := ParseListing([]byte("Using slot 0 with a present token (0x0)\nNo objects found\n"))

		testutil.Then(t, "parsing reports failure", func(t *testing.T) {
			assert.False(t, ok)
			assert.Nil(t, subject)
		})
	})

	testutil.Given(t, "a DN followed by the Certificate keyword on the same line", func(t *testing.T) {
		subject, ok := ParseListing([]byte("subject: DN: O=Acme, CN=DOE.JANE Certificate Object"))

		testutil.Then(t, "the DN stops at the keyword", func(t *testing.T) {
			require.True(t, ok)
			assert.Equal(t, "O=Acme, CN=DOE.JANE", subject.DN)
			assert.Equal(t, "DOE.JANE", subject.UID)
		})
	})

	testutil.Given(t, "an empty DN", func(t *testing.T) {
		_, ok := ParseListing([]byte("subject: DN:   "))

		testutil.Then(t, "parsing reports failure", func(t *testing.T) {
			assert.False(t, ok)
		})
	})
}

func TestParseDNNames(t *testing.T) {
	tests := []struct {
		name          string
		cn            string
		last, first   string
		middleInitial string
		ambiguous     bool
	}{
		{"single letter middle", "DOE.JOHN.Q.1234567890", "DOE", "JOHN", "Q", false},
		{"long middle is truncated", "DOE.JOHN.QUINCY.1234567890", "DOE", "JOHN", "Q", false},
		{"digit middle is discarded", "DOE.JOHN.1234567890", "DOE", "JOHN", "", false},
		{"two segments", "DOE.JOHN", "DOE", "JOHN", "", false},
		{"empty first segment", ".JOHN", "", "JOHN", "", true},
		{"no separator", "jdoe", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ParseDN("C=US, O=U.S. Government, CN=" + tt.cn)
			assert.Equal(t, tt.last, s.LastName)
			assert.Equal(t, tt.first, s.FirstName)
			assert.Equal(t, tt.middleInitial, s.MiddleInitial)
			assert.Equal(t, tt.cn, s.UID)
			assert.Equal(t, tt.ambiguous, s.Ambiguous)
		})
	}
}

func TestParseDNBranchIsLastMatchingOU(t *testing.T) {
	tests := []struct {
		dn     string
		branch string
	}{
		{"OU=USA, OU=PKI, OU=USMC, CN=A.B", "USMC"},
		{"OU=USN, OU=Contractor, CN=A.B", "USN"},
		{"OU=DoD, OU=PKI, CN=A.B", ""},
		{"OU=usaf, CN=A.B", ""},
		{"OU=USAF Reserve, CN=A.B", ""},
		{"OU=USCG, CN=A.B", "USCG"},
		{"CN=A.B", ""},
	}
	for _, tt := range tests {
		t.Run(tt.dn, func(t *testing.T) {
			assert.Equal(t, tt.branch, ParseDN(tt.dn).Branch)
		})
	}
}

func TestParseDNEdgeCases(t *testing.T) {
	t.Run("missing CN", func(t *testing.T) {
		s := ParseDN("C=US, O=U.S. Government, OU=USAF")
		assert.Equal(t, UnknownUID, s.UID)
		assert.Empty(t, s.CommonName)
		assert.Empty(t, s.FullName)
		assert.True(t, s.Ambiguous)
		assert.Equal(t, "USAF", s.Branch)
	})

	t.Run("OU is never mistaken for O", func(t *testing.T) {
		s := ParseDN("OU=DoD, O=U.S. Government, CN=A.B")
		assert.Equal(t, "U.S. Government", s.Organization)
	})

	t.Run("escaped comma stays in value", func(t *testing.T) {
		s := ParseDN(`O=Doe\, Inc., CN=DOE.JANE`)
		assert.Equal(t, "Doe, Inc.", s.Organization)
		assert.Equal(t, "JANE DOE", s.FullName)
	})

	t.Run("openssl one-line form", func(t *testing.T) {
		s := ParseDN("/C=US/O=U.S. Government/OU=DoD/OU=USA/CN=DOE.JANE.M.1234567890")
		assert.Equal(t, "USA", s.Branch)
		assert.Equal(t, "M", s.MiddleInitial)
		assert.Equal(t, "U.S. Government", s.Organization)
	})

	t.Run("duplicate OUs are kept in order", func(t *testing.T) {
		s := ParseDN("OU=PKI, OU=PKI, OU=USAF, CN=A.B")
		assert.Equal(t, []string{"PKI", "PKI", "USAF"}, s.OrganizationalUnits)
	})

	t.Run("first CN wins", func(t *testing.T) {
		s := ParseDN("CN=A.B, CN=C.D")
		assert.Equal(t, "A.B", s.UID)
	})
}
