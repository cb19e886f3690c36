package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Secrets are the values the deployment keeps out of the environment, in
// a file of KEY=VALUE lines. Unknown lines are ignored so the file may
// serve other consumers too.
type Secrets struct {
	LDAPPassword      string
	DatabasePasswords string
	EncryptPassword   string
}

// ParseSecrets reads the secrets file. The format matches the existing
// deployment files: one KEY=VALUE per line, values taken verbatim after
// the first "=", surrounding whitespace trimmed.
func ParseSecrets(path string) (Secrets, error) {
	var s Secrets

	f, err := os.Open(path)
	if err != nil {
		return s, fmt.Errorf("open secrets file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "LDAP_PASSWORD"):
			s.LDAPPassword = valueOf(line)
		case strings.HasPrefix(line, "DATABASE_PASSWORDS"):
			s.DatabasePasswords = valueOf(line)
		case strings.HasPrefix(line, "PW_ENCRYPT_PASSWORD"):
			s.EncryptPassword = valueOf(line)
		}
	}
	if err := sc.Err(); err != nil {
		return s, fmt.Errorf("read secrets file: %w", err)
	}
	return s, nil
}

func valueOf(line string) string {
	_, value, _ := strings.Cut(line, "=")
	return strings.TrimSpace(value)
}

// applySecrets fills password fields that are still empty from the
// secrets file. A missing file is fine as long as the fields got their
// values elsewhere; Validate has the final word.
func (c *Config) applySecrets() error {
	if c.SecretsFile == "" {
		return nil
	}
	s, err := ParseSecrets(c.SecretsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if c.LDAP.Password == "" {
		c.LDAP.Password = s.LDAPPassword
	}
	if c.Database.Passwords == "" {
		c.Database.Passwords = s.DatabasePasswords
	}
	if c.Sync.EncryptPassword == "" {
		c.Sync.EncryptPassword = s.EncryptPassword
	}
	return nil
}
