package certificate

import (
	"regexp"
	"strings"
	"unicode"
)

// Branch codes recognised as the service component of a DoD subject.
const (
	BranchUSAF = "USAF"
	BranchUSA  = "USA"
	BranchUSN  = "USN"
	BranchUSMC = "USMC"
	BranchUSCG = "USCG"
)

var branches = map[string]struct{}{
	BranchUSAF: {},
	BranchUSA:  {},
	BranchUSN:  {},
	BranchUSMC: {},
	BranchUSCG: {},
}

// IsBranch reports whether ou is exactly one of the branch codes.
func IsBranch(ou string) bool {
	_, ok := branches[ou]
	return ok
}

// dnLine matches the subject printed by pkcs11-tool --list-objects, e.g.
//
//	subject:    DN: C=US, O=U.S. Government, OU=DoD, OU=PKI, OU=USAF, CN=DOE.JOHN.Q.1234567890
var dnLine = regexp.MustCompile(`DN:\s*(.+?)(?:\n|Certificate|$)`)

// Subject holds the identity fields carried by a certificate subject.
type Subject struct {
	DN                  string   `json:"dn"`
	CommonName          string   `json:"commonName"`
	Organization        string   `json:"organization"`
	OrganizationalUnits []string `json:"organizationalUnits"`
	FirstName           string   `json:"firstName"`
	LastName            string   `json:"lastName"`
	MiddleInitial       string   `json:"middleInitial"`
	Branch              string   `json:"branch"`
	FullName            string   `json:"fullName"`
	UID                 string   `json:"uid"`
	// Ambiguous is set when the common name is missing or does not follow
	// the LAST.FIRST.MIDDLE.EDIPI convention.
	Ambiguous bool `json:"ambiguous"`
}

// UnknownUID stands in for the uid of a certificate without a common name.
// It is never used as a directory search key.
const UnknownUID = "Unknown"

// ParseListing finds the first DN in certificate listing output and parses
// it. It reports false when the output carries no DN marker.
func ParseListing(raw []byte) (*Subject, bool) {
	m := dnLine.FindSubmatch(raw)
	if m == nil {
		return nil, false
	}
	dn := strings.TrimSpace(string(m[1]))
	if dn == "" {
		return nil, false
	}
	s := ParseDN(dn)
	return &s, true
}

// ParseDN splits a distinguished name into its identity fields. Parsing is
// tolerant: unknown attributes are ignored and a malformed common name yields
// a partially populated subject instead of an error.
func ParseDN(dn string) Subject {
	s := Subject{DN: dn}
	haveCN, haveO := false, false

	for _, attr := range splitAttributes(dn) {
		key, value, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "CN":
			if !haveCN {
				s.CommonName = value
				haveCN = true
			}
		case "O":
			if !haveO {
				s.Organization = value
				haveO = true
			}
		case "OU":
			s.OrganizationalUnits = append(s.OrganizationalUnits, value)
		}
	}

	for i := len(s.OrganizationalUnits) - 1; i >= 0; i-- {
		if IsBranch(s.OrganizationalUnits[i]) {
			s.Branch = s.OrganizationalUnits[i]
			break
		}
	}

	s.UID = s.CommonName
	if s.UID == "" {
		s.UID = UnknownUID
	}
	if strings.Contains(s.CommonName, ".") {
		parts := strings.Split(s.CommonName, ".")
		s.LastName = parts[0]
		s.FirstName = parts[1]
		if len(parts) > 2 {
			s.MiddleInitial = middleInitial(parts[2])
		}
	}
	s.FullName = strings.TrimSpace(s.FirstName + " " + s.LastName)
	s.Ambiguous = s.FirstName == "" || s.LastName == ""

	return s
}

// middleInitial keeps the first character of the candidate. A candidate
// starting with a digit is the EDIPI, not an initial.
func middleInitial(candidate string) string {
	for _, r := range candidate {
		if unicode.IsDigit(r) {
			return ""
		}
		return string(r)
	}
	return ""
}

// splitAttributes splits on unescaped separators. Both the RFC 4514 comma
// form and the OpenSSL "/C=US/O=..." one-line form are accepted.
func splitAttributes(dn string) []string {
	sep := ','
	if strings.HasPrefix(dn, "/") {
		sep = '/'
		dn = dn[1:]
	}

	var (
		attrs   []string
		cur     strings.Builder
		escaped bool
	)
	for _, r := range dn {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == sep:
			attrs = append(attrs, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		attrs = append(attrs, cur.String())
	}
	return attrs
}
