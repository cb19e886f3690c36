package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/edusync/idnsync/pkg/types"
)

// Tenants builds the tenant list from the instances string. Each entry
// is "db:label"; a missing label falls back to the database name. The
// subtree of every tenant follows the fixed template
// <user_ou>,ou=<db>,<base_dn>.
func (c *Config) Tenants() ([]types.Tenant, error) {
	passwords, err := parsePairs(c.Database.Passwords)
	if err != nil {
		return nil, fmt.Errorf("database passwords: %w", err)
	}

	readonly := make(map[string]bool)
	for _, db := range strings.Split(c.Database.ReadOnly, ",") {
		if db = strings.TrimSpace(db); db != "" {
			readonly[db] = true
		}
	}

	var tenants []types.Tenant
	seen := make(map[string]bool)
	for _, entry := range strings.Split(c.Database.Instances, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		db, label, _ := strings.Cut(entry, ":")
		db, label = strings.TrimSpace(db), strings.TrimSpace(label)
		if db == "" {
			return nil, fmt.Errorf("instance entry %q has no database name", entry)
		}
		if seen[db] {
			return nil, fmt.Errorf("database %s listed twice", db)
		}
		seen[db] = true
		if label == "" {
			label = db
		}

		pw, ok := passwords[db]
		if !ok {
			return nil, fmt.Errorf("no database password for %s", db)
		}

		tenants = append(tenants, types.Tenant{
			Database: db,
			Label:    label,
			BaseDN:   c.baseDN(db),
			DSN:      c.dsn(db, pw),
			ReadOnly: readonly[db],
			Shared:   db == c.Sync.SharedDatabase,
		})
	}
	if len(tenants) == 0 {
		return nil, fmt.Errorf("no database instances configured")
	}
	return tenants, nil
}

// SharedBaseDN returns the shared tenant's subtree, empty when no shared
// database is configured. The shared database does not have to appear in
// the instances list for its subtree to exist.
func (c *Config) SharedBaseDN() string {
	if c.Sync.SharedDatabase == "" {
		return ""
	}
	return c.baseDN(c.Sync.SharedDatabase)
}

func (c *Config) baseDN(db string) string {
	return strings.Join([]string{c.LDAP.UserOU, "ou=" + db, c.LDAP.BaseDN}, ",")
}

func (c *Config) dsn(db, password string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.Database.User),
		url.QueryEscape(password),
		c.Database.Host,
		c.Database.Port,
		db,
		c.Database.SSLMode,
	)
}

// parsePairs splits "key:value,key:value" into a map, the format both
// DATABASE_PASSWORDS and DATABASE_INSTANCES use.
func parsePairs(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, found := strings.Cut(entry, ":")
		if !found {
			return nil, fmt.Errorf("entry %q is not key:value", entry)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, nil
}
