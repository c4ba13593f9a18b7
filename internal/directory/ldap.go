package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"mfrid/internal/platform/config"
)

var userAttributes = []string{
	"displayName",
	"sAMAccountName",
	"title",
	"department",
	"mail",
	"telephoneNumber",
	"mobile",
}

// LDAPSearcher binds with the service account and searches user objects
// under the base DN. Every search dials its own connection.
type LDAPSearcher struct {
	url       string
	baseDN    string
	username  string
	password  string
	timeout   time.Duration
	tlsConfig *tls.Config
}

func NewLDAPSearcher(cfg config.Directory) *LDAPSearcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultDirTimeout
	}
	return &LDAPSearcher{
		url:      cfg.URL,
		baseDN:   cfg.BaseDN,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  timeout,
		tlsConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for lab directories
		},
	}
}

func (s *LDAPSearcher) Search(ctx context.Context, filter string) ([]Record, error) {
	conn, err := ldap.DialURL(s.url,
		ldap.DialWithDialer(&net.Dialer{Timeout: s.timeout}),
		ldap.DialWithTLSConfig(s.tlsConfig),
	)
	if err != nil {
		return nil, fmt.Errorf("dial directory: %w", err)
	}
	defer conn.Close()

	// Closing the connection aborts an in-flight bind or search.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	conn.SetTimeout(timeout)

	if err := conn.Bind(s.username, s.password); err != nil {
		return nil, s.wrap(ctx, "bind", err)
	}

	req := ldap.NewSearchRequest(
		s.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		timeLimitSeconds(timeout),
		false,
		"(&(objectClass=user)"+filter+")",
		userAttributes,
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, s.wrap(ctx, "search", err)
	}

	records := make([]Record, 0, len(res.Entries))
	for _, e := range res.Entries {
		records = append(records, recordFromEntry(e))
	}
	return records, nil
}

// timeLimitSeconds converts the remaining budget to the whole-second server
// time limit. It rounds up and never returns 0, which the server reads as
// no limit.
func timeLimitSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func (s *LDAPSearcher) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(ctxErr, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func recordFromEntry(e *ldap.Entry) Record {
	return Record{
		DisplayName: e.GetAttributeValue("displayName"),
		AccountName: e.GetAttributeValue("sAMAccountName"),
		Title:       e.GetAttributeValue("title"),
		Department:  e.GetAttributeValue("department"),
		Email:       e.GetAttributeValue("mail"),
		Telephone:   e.GetAttributeValue("telephoneNumber"),
		Mobile:      e.GetAttributeValue("mobile"),
	}
}
