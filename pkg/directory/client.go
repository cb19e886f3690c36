package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	ldap "github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/metrics"
)

// DefaultRebindWait is the pause between bind attempts when the directory
// is unreachable.
const DefaultRebindWait = 5 * time.Second

var errNotConnected = errors.New("directory: not connected")

// Config holds the connection settings for the directory server.
type Config struct {
	// URI is an ldap:// or ldaps:// URL.
	URI string

	// BindDN and Password authenticate the sync account.
	BindDN   string
	Password string

	// RebindWait is the pause between bind attempts. Zero means
	// DefaultRebindWait.
	RebindWait time.Duration

	// InsecureSkipVerify disables TLS certificate verification, for test
	// directories with self-signed certificates.
	InsecureSkipVerify bool
}

// Client is the production Gateway backed by one LDAP connection.
type Client struct {
	cfg  Config
	conn *ldap.Conn
	log  zerolog.Logger
}

var _ Gateway = (*Client)(nil)

// Connect dials and binds, retrying with a constant pause until the
// context is cancelled. The directory being down at startup is routine
// during maintenance windows, so there is no attempt limit.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RebindWait <= 0 {
		cfg.RebindWait = DefaultRebindWait
	}

	c := &Client{cfg: cfg, log: log.WithComponent("directory")}
	if err := c.Rebind(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Rebind drops the current connection and binds again, retrying with the
// configured pause until it succeeds or the context is cancelled.
func (c *Client) Rebind(ctx context.Context) error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	op := func() error {
		metrics.DirectoryRebindsTotal.Inc()
		conn, err := c.dial()
		if err != nil {
			c.log.Warn().Err(err).Str("uri", c.cfg.URI).Msg("directory bind failed, retrying")
			return err
		}
		c.conn = conn
		return nil
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(c.cfg.RebindWait), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("failed to bind to %s: %w", c.cfg.URI, err)
	}

	c.log.Info().Str("uri", c.cfg.URI).Str("bind_dn", c.cfg.BindDN).Msg("directory connection established")
	return nil
}

func (c *Client) dial() (*ldap.Conn, error) {
	var opts []ldap.DialOpt
	if c.cfg.InsecureSkipVerify {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}

	conn, err := ldap.DialURL(c.cfg.URI, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URI, err)
	}

	if err := conn.Bind(c.cfg.BindDN, c.cfg.Password); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bind as %s: %w", c.cfg.BindDN, err)
	}
	return conn, nil
}

// Search runs a plain search below base. A missing search base yields an
// empty result, not an error, since tenant subtrees appear only after the
// initial load.
func (c *Client) Search(base string, scope Scope, filter string, attrs []string) ([]Entry, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}

	metrics.DirectoryOpsTotal.WithLabelValues("search").Inc()
	req := ldap.NewSearchRequest(base, int(scope), ldap.NeverDerefAliases, 0, 0, false, filter, attrs, nil)
	res, err := c.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s below %s: %w", filter, base, err)
	}
	return entries(res), nil
}

// SearchPaged runs a subtree search in pages, for scans that may return
// more entries than the server's size limit.
func (c *Client) SearchPaged(base, filter string, attrs []string, pageSize uint32) ([]Entry, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}

	metrics.DirectoryOpsTotal.WithLabelValues("search_paged").Inc()
	req := ldap.NewSearchRequest(base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false, filter, attrs, nil)
	res, err := c.conn.SearchWithPaging(req, pageSize)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, fmt.Errorf("paged search %s below %s: %w", filter, base, err)
	}
	return entries(res), nil
}

// GetEntry reads exactly one entry by DN.
func (c *Client) GetEntry(dn string, attrs []string) (*Entry, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}

	metrics.DirectoryOpsTotal.WithLabelValues("get").Inc()
	req := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false, "(objectClass=*)", attrs, nil)
	res, err := c.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", dn, err)
	}
	if len(res.Entries) == 0 {
		return nil, ErrNotFound
	}

	e := toEntry(res.Entries[0])
	return &e, nil
}

// Add creates an entry.
func (c *Client) Add(dn string, attrs map[string][]string) error {
	if c.conn == nil {
		return errNotConnected
	}

	metrics.DirectoryOpsTotal.WithLabelValues("add").Inc()
	req := ldap.NewAddRequest(dn, nil)
	for attr, values := range attrs {
		req.Attribute(attr, values)
	}
	if err := c.conn.Add(req); err != nil {
		return fmt.Errorf("add %s: %w", dn, err)
	}
	return nil
}

// Modify applies attribute replacements and removals in one operation.
func (c *Client) Modify(dn string, replace map[string][]string, remove []string) error {
	if c.conn == nil {
		return errNotConnected
	}
	if len(replace) == 0 && len(remove) == 0 {
		return nil
	}

	metrics.DirectoryOpsTotal.WithLabelValues("modify").Inc()
	req := ldap.NewModifyRequest(dn, nil)
	for attr, values := range replace {
		req.Replace(attr, values)
	}
	for _, attr := range remove {
		req.Delete(attr, []string{})
	}
	if err := c.conn.Modify(req); err != nil {
		return fmt.Errorf("modify %s: %w", dn, err)
	}
	return nil
}

// ModifyDN renames the entry to a new RDN, dropping the old RDN value.
func (c *Client) ModifyDN(dn, newRDN string) error {
	if c.conn == nil {
		return errNotConnected
	}

	metrics.DirectoryOpsTotal.WithLabelValues("modify_dn").Inc()
	req := ldap.NewModifyDNRequest(dn, newRDN, true, "")
	if err := c.conn.ModifyDN(req); err != nil {
		return fmt.Errorf("rename %s to %s: %w", dn, newRDN, err)
	}
	return nil
}

// Delete removes the entry.
func (c *Client) Delete(dn string) error {
	if c.conn == nil {
		return errNotConnected
	}

	metrics.DirectoryOpsTotal.WithLabelValues("delete").Inc()
	if err := c.conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		return fmt.Errorf("delete %s: %w", dn, err)
	}
	return nil
}

// ModifyPassword sets the native directory password via the password
// modify extended operation. This is separate from the
// idnDistributionPassword attribute, which carries the recoverable cipher.
func (c *Client) ModifyPassword(dn, password string) error {
	if c.conn == nil {
		return errNotConnected
	}

	metrics.DirectoryOpsTotal.WithLabelValues("passwd").Inc()
	req := ldap.NewPasswordModifyRequest(dn, "", password)
	if _, err := c.conn.PasswordModify(req); err != nil {
		return fmt.Errorf("password modify %s: %w", dn, err)
	}
	return nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsUnavailable reports whether err looks like a lost or overloaded
// connection, meaning a fresh bind may help. Other directory errors are
// still retried through the event-status mechanism, but without rebinding.
func IsUnavailable(err error) bool {
	return ldap.IsErrorAnyOf(err,
		ldap.ErrorNetwork,
		ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
	)
}

func entries(res *ldap.SearchResult) []Entry {
	out := make([]Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, toEntry(e))
	}
	return out
}

func toEntry(e *ldap.Entry) Entry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Name] = a.Values
	}
	return Entry{DN: e.DN, Attrs: attrs}
}
