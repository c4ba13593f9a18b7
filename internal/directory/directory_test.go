package directory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mfrid/internal/directory"
	"mfrid/internal/directory/mocks"
	"mfrid/internal/platform/config"
	"mfrid/internal/platform/logger"
	"mfrid/internal/platform/metrics"
	"mfrid/pkg/platform/circuit"
	"mfrid/pkg/platform/sentinel"
)

var fullConfig = config.Directory{
	URL:      "ldaps://dc01.example.mil:636",
	BaseDN:   "DC=example,DC=mil",
	Username: "svc-mfr@example.mil",
	Password: "secret",
	Timeout:  time.Second,
}

type ClientSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	searcher *mocks.MockSearcher
	metrics  *metrics.Metrics
	client   *directory.Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.searcher = mocks.NewMockSearcher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.client = directory.New(fullConfig,
		directory.WithSearcher(s.searcher),
		directory.WithLogger(logger.Discard()),
		directory.WithMetrics(s.metrics),
	)
}

func (s *ClientSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ClientSuite) TestFirstFilterWins() {
	s.searcher.EXPECT().Search(gomock.Any(), "(displayName=JOHN DOE)").
		Return([]directory.Record{{DisplayName: "JOHN DOE", Title: "Lt Col, USAF"}, {Title: "ignored"}}, nil)

	rec, err := s.client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN.Q.1234567890")

	s.Require().NoError(err)
	s.Require().NotNil(rec)
	s.Equal("Lt Col, USAF", rec.Title)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.DirectoryLookups.WithLabelValues("found")))
}

func (s *ClientSuite) TestFiltersAreTriedInOrder() {
	gomock.InOrder(
		s.searcher.EXPECT().Search(gomock.Any(), "(displayName=JOHN DOE)").Return(nil, nil),
		s.searcher.EXPECT().Search(gomock.Any(), "(sAMAccountName=DOE.JOHN.Q.1234567890)").Return([]directory.Record{}, nil),
		s.searcher.EXPECT().Search(gomock.Any(), "(cn=JOHN DOE)").
			Return([]directory.Record{{Title: "Maj"}}, nil),
	)

	rec, err := s.client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN.Q.1234567890")

	s.Require().NoError(err)
	s.Require().NotNil(rec)
	s.Equal("JOHN DOE", rec.DisplayName, "display name falls back to the queried name")
	s.Equal("Maj", rec.Title)
}

func (s *ClientSuite) TestFailedFilterIsTreatedAsNoMatch() {
	gomock.InOrder(
		s.searcher.EXPECT().Search(gomock.Any(), "(displayName=JOHN DOE)").Return(nil, errors.New("LDAP Result Code 49")),
		s.searcher.EXPECT().Search(gomock.Any(), "(sAMAccountName=DOE.JOHN)").
			Return([]directory.Record{{DisplayName: "Doe, John", Title: "Capt"}}, nil),
	)

	rec, err := s.client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN")

	s.Require().NoError(err)
	s.Equal("Capt", rec.Title)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.DirectoryFilterErr.WithLabelValues("displayName")))
}

func (s *ClientSuite) TestNotFound() {
	s.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, nil).Times(3)

	rec, err := s.client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN")

	s.NoError(err)
	s.Nil(rec)
}

func (s *ClientSuite) TestEveryFilterFailing() {
	s.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused")).Times(3)

	rec, err := s.client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN")

	s.Nil(rec)
	s.ErrorIs(err, directory.ErrUnreachable)
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *ClientSuite) TestEmptyValuesAreSkipped() {
	s.searcher.EXPECT().Search(gomock.Any(), "(sAMAccountName=jdoe)").Return(nil, nil)

	rec, err := s.client.Lookup(context.Background(), "", "jdoe")

	s.NoError(err)
	s.Nil(rec)
}

func (s *ClientSuite) TestValuesAreEscaped() {
	s.searcher.EXPECT().Search(gomock.Any(), `(displayName=\2a\29\28uid=\2a)`).
		Return([]directory.Record{{Title: "Col"}}, nil)

	rec, err := s.client.Lookup(context.Background(), "*)(uid=*", "")

	s.Require().NoError(err)
	s.Equal("Col", rec.Title)
}

func (s *ClientSuite) TestSearchIsBoundedByTimeout() {
	s.searcher.EXPECT().Search(gomock.Any(), "(displayName=JOHN DOE)").
		DoAndReturn(func(ctx context.Context, _ string) ([]directory.Record, error) {
			deadline, ok := ctx.Deadline()
			s.True(ok)
			s.WithinDuration(time.Now().Add(time.Second), deadline, 200*time.Millisecond)
			return []directory.Record{{Title: "SSgt"}}, nil
		})

	rec, err := s.client.Lookup(context.Background(), "JOHN DOE", "")

	s.Require().NoError(err)
	s.Equal("SSgt", rec.Title)
}

func (s *ClientSuite) TestCancelledContextStopsLookup() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := s.client.Lookup(ctx, "JOHN DOE", "DOE.JOHN")

	s.Nil(rec)
	s.ErrorIs(err, context.Canceled)
}

func (s *ClientSuite) TestCircuitOpensAfterRepeatedOutages() {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	client := directory.New(fullConfig,
		directory.WithSearcher(s.searcher),
		directory.WithLogger(logger.Discard()),
		directory.WithMetrics(s.metrics),
		directory.WithBreaker(circuit.New("directory",
			circuit.WithFailureThreshold(2),
			circuit.WithCooldown(time.Minute),
			circuit.WithClock(func() time.Time { return now }),
		)),
	)
	refused := errors.New("connection refused")

	s.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, refused).Times(6)
	for i := 0; i < 2; i++ {
		_, err := client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN")
		s.ErrorIs(err, directory.ErrUnreachable)
	}
	s.Equal(1.0, promtest.ToFloat64(s.metrics.DirectoryCircuit))

	rec, err := client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN")
	s.Nil(rec)
	s.ErrorIs(err, directory.ErrCircuitOpen)
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.DirectoryLookups.WithLabelValues("circuit_open")))

	now = now.Add(time.Minute)
	s.searcher.EXPECT().Search(gomock.Any(), "(displayName=JOHN DOE)").Return([]directory.Record{{Title: "Maj"}}, nil)
	rec, err = client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN")
	s.Require().NoError(err)
	s.Equal("Maj", rec.Title)
	s.Equal(0.0, promtest.ToFloat64(s.metrics.DirectoryCircuit))
}

func (s *ClientSuite) TestNotFoundKeepsCircuitClosed() {
	client := directory.New(fullConfig,
		directory.WithSearcher(s.searcher),
		directory.WithLogger(logger.Discard()),
		directory.WithBreaker(circuit.New("directory", circuit.WithFailureThreshold(1))),
	)
	s.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, nil).Times(6)

	for i := 0; i < 2; i++ {
		rec, err := client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN")
		s.NoError(err)
		s.Nil(rec)
	}
}

func TestDisabledClientNeverSearches(t *testing.T) {
	missing := []func(*config.Directory){
		func(c *config.Directory) { c.URL = "" },
		func(c *config.Directory) { c.BaseDN = "" },
		func(c *config.Directory) { c.Username = "" },
		func(c *config.Directory) { c.Password = "" },
	}
	for _, unset := range missing {
		ctrl := gomock.NewController(t)
		searcher := mocks.NewMockSearcher(ctrl)
		cfg := fullConfig
		unset(&cfg)

		client := directory.New(cfg, directory.WithSearcher(searcher), directory.WithLogger(logger.Discard()))
		rec, err := client.Lookup(context.Background(), "JOHN DOE", "DOE.JOHN")

		if client.Available() {
			t.Fatalf("client with %+v should be disabled", cfg)
		}
		if rec != nil || !errors.Is(err, directory.ErrDisabled) {
			t.Fatalf("expected disabled lookup, got %v, %v", rec, err)
		}
	}
}

func TestFilters(t *testing.T) {
	got := directory.Filters("JANE SMITH", "SMITH.JANE.1")
	want := []string{"(displayName=JANE SMITH)", "(sAMAccountName=SMITH.JANE.1)", "(cn=JANE SMITH)"}
	for i, f := range got {
		if f.String() != want[i] {
			t.Errorf("filter %d: got %q, want %q", i, f.String(), want[i])
		}
	}
}
