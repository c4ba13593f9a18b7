// Package directory looks users up in Active Directory to recover the title
// (and with it the rank) that the certificate does not carry.
package directory

//go:generate mockgen -source=directory.go -destination=mocks/mocks.go -package=mocks Searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"

	"mfrid/internal/platform/config"
	"mfrid/internal/platform/metrics"
	"mfrid/pkg/platform/circuit"
	"mfrid/pkg/platform/sentinel"
)

var (
	// ErrDisabled is returned by every lookup on a client built without a
	// complete configuration. No network I/O is attempted.
	ErrDisabled = fmt.Errorf("directory not configured: %w", sentinel.ErrUnavailable)
	// ErrUnreachable is returned when every attempted filter failed.
	ErrUnreachable = fmt.Errorf("directory unreachable: %w", sentinel.ErrUnavailable)
	// ErrCircuitOpen is returned without searching while recent lookups
	// have all been unreachable.
	ErrCircuitOpen = fmt.Errorf("directory circuit open: %w", sentinel.ErrUnavailable)
)

// Record is the subset of a directory user entry the resolver uses.
type Record struct {
	DisplayName string `json:"displayName"`
	AccountName string `json:"accountName"`
	Title       string `json:"title"`
	Department  string `json:"department"`
	Email       string `json:"email"`
	Telephone   string `json:"telephone,omitempty"`
	Mobile      string `json:"mobile,omitempty"`
}

// Searcher runs one filter against the directory and returns matching users.
type Searcher interface {
	Search(ctx context.Context, filter string) ([]Record, error)
}

// Filter is one search attempt, tried in Filters order.
type Filter struct {
	Attribute string
	Value     string
}

// String renders the filter with the value escaped.
func (f Filter) String() string {
	return fmt.Sprintf("(%s=%s)", f.Attribute, ldap.EscapeFilter(f.Value))
}

// Filters returns the ordered search attempts for a user.
func Filters(name, uid string) []Filter {
	return []Filter{
		{Attribute: "displayName", Value: name},
		{Attribute: "sAMAccountName", Value: uid},
		{Attribute: "cn", Value: name},
	}
}

// Client is built once at startup and shared read-only between requests.
type Client struct {
	searcher  Searcher
	available bool
	url       string
	timeout   time.Duration
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Client)

// WithSearcher replaces the LDAP searcher, typically with a test double.
func WithSearcher(s Searcher) Option {
	return func(c *Client) {
		c.searcher = s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBreaker replaces the breaker built from the configuration.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// New builds the client. When any of the four required values is missing the
// client is disabled for the life of the process.
func New(cfg config.Directory, opts ...Option) *Client {
	c := &Client{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultDirTimeout
	}

	c.available = cfg.Configured()
	if !c.available {
		c.searcher = nil
		c.logger.Info("directory not configured, rank lookup disabled")
		return c
	}
	if c.searcher == nil {
		c.searcher = NewLDAPSearcher(cfg)
	}
	if c.breaker == nil && cfg.BreakerThreshold > 0 {
		c.breaker = circuit.New("directory",
			circuit.WithFailureThreshold(cfg.BreakerThreshold),
			circuit.WithCooldown(cfg.BreakerCooldown),
		)
	}
	c.logger.Info("directory client initialized", "url", cfg.URL, "base_dn", cfg.BaseDN)
	return c
}

// Available reports whether lookups can reach the directory at all.
func (c *Client) Available() bool {
	return c.available
}

// Lookup tries each filter in order and returns the first entry of the first
// filter that matches. A failed attempt is logged and counts as no match for
// that filter. A nil record with a nil error means the user was not found.
func (c *Client) Lookup(ctx context.Context, name, uid string) (*Record, error) {
	if !c.available {
		c.metrics.IncrementDirectoryLookup("disabled")
		return nil, ErrDisabled
	}
	if c.breaker != nil && !c.breaker.Allow() {
		c.metrics.IncrementDirectoryLookup("circuit_open")
		return nil, ErrCircuitOpen
	}

	rec, err := c.lookup(ctx, name, uid)
	c.record(ctx, err)
	return rec, err
}

func (c *Client) lookup(ctx context.Context, name, uid string) (*Record, error) {
	var (
		attempted int
		failures  []error
	)
	for _, f := range Filters(name, uid) {
		if f.Value == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		attempted++

		records, err := c.search(ctx, f)
		if err != nil {
			c.logger.WarnContext(ctx, "directory search failed",
				"attribute", f.Attribute,
				"error", err,
			)
			c.metrics.IncrementDirectoryFilterFailure(f.Attribute)
			failures = append(failures, fmt.Errorf("%s: %w", f.Attribute, err))
			continue
		}
		if len(records) == 0 {
			continue
		}

		rec := records[0]
		if rec.DisplayName == "" {
			rec.DisplayName = name
		}
		c.logger.DebugContext(ctx, "directory user found",
			"attribute", f.Attribute,
			"display_name", rec.DisplayName,
			"title", rec.Title,
		)
		c.metrics.IncrementDirectoryLookup("found")
		return &rec, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if attempted > 0 && len(failures) >= attempted {
		c.metrics.IncrementDirectoryLookup("error")
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, errors.Join(failures...))
	}
	c.metrics.IncrementDirectoryLookup("not_found")
	c.logger.DebugContext(ctx, "user not found in directory")
	return nil, nil
}

// record feeds the breaker. Cancellation by the caller says nothing about the
// directory and is not counted.
func (c *Client) record(ctx context.Context, err error) {
	if c.breaker == nil || ctx.Err() != nil {
		return
	}
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.metrics.SetDirectoryCircuitOpen(true)
			c.logger.WarnContext(ctx, "directory circuit opened, skipping lookups", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetDirectoryCircuitOpen(false)
		c.logger.InfoContext(ctx, "directory circuit closed", "breaker", c.breaker.Name())
	}
}

func (c *Client) search(ctx context.Context, f Filter) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	records, err := c.searcher.Search(ctx, f.String())
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	return records, err
}
