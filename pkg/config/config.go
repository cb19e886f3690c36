package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LDAP holds the directory connection settings.
type LDAP struct {
	// URI is the directory address, ldap:// or ldaps://.
	URI string `mapstructure:"uri" validate:"required,url"`

	// BindDN and Password authenticate the sync's connection.
	BindDN   string `mapstructure:"bind_dn" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`

	// BaseDN is the top of the directory tree, for example o=Edu.
	BaseDN string `mapstructure:"base_dn" validate:"required"`

	// UserOU is the per-tenant person container. Each tenant's subtree is
	// <UserOU>,ou=<database>,<BaseDN>.
	UserOU string `mapstructure:"user_ou" validate:"required"`
}

// Database holds the source database settings shared by all tenants.
// Tenant databases differ only in name and password; they live on the
// same server.
type Database struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	User string `mapstructure:"user" validate:"required"`

	// Instances lists the tenant databases as "db:label" pairs separated
	// by commas, for example "inst07:PH Vienna,inst09:PH Graz".
	Instances string `mapstructure:"instances" validate:"required"`

	// Passwords carries per-database passwords as "db:password" pairs
	// separated by commas. Usually filled from the secrets file.
	Passwords string `mapstructure:"passwords"`

	// ReadOnly lists databases whose event log must not be written,
	// comma separated.
	ReadOnly string `mapstructure:"readonly"`

	// SSLMode is passed through to the driver.
	SSLMode string `mapstructure:"sslmode"`
}

// Sync holds the event-loop settings.
type Sync struct {
	// MaxRecords caps the events one tenant may process per round.
	MaxRecords int `mapstructure:"max_records" validate:"gt=0"`

	// SleepSeconds is the pause between rounds. A round in which some
	// tenant hit MaxRecords skips it.
	SleepSeconds int `mapstructure:"sleeptime" validate:"gte=0"`

	// SharedDatabase names the tenant that receives cross-tenant
	// fan-out. Empty disables fan-out.
	SharedDatabase string `mapstructure:"shared_database"`

	// EncryptPassword is the key material for the password cipher.
	// Usually filled from the secrets file.
	EncryptPassword string `mapstructure:"encrypt_password" validate:"required"`

	// FixedIV pins the password cipher IV to a constant, hex encoded.
	// Regression testing only; leave empty in production.
	FixedIV string `mapstructure:"fixed_iv"`

	// StateFile is the bbolt file for read-only tenant watermarks.
	// Empty keeps watermarks in memory only.
	StateFile string `mapstructure:"state_file"`

	// LivenessFile is touched at the start of every round.
	LivenessFile string `mapstructure:"liveness_file"`

	// Terminate makes fatal errors end the process instead of holding it
	// in an endless sleep for an orchestrator to inspect.
	Terminate bool `mapstructure:"terminate"`
}

// Ops holds the metrics and health listener settings.
type Ops struct {
	// Listen is the address of the combined /metrics and /healthz
	// listener. Empty disables it.
	Listen string `mapstructure:"listen"`
}

// Config is the full process configuration.
//
// Sources in order of precedence: environment variables (the unprefixed
// names the deployment already uses: LDAP_BIND_DN, DATABASE_INSTANCES and
// so on), an optional YAML file, built-in defaults. Passwords may instead
// come from the secrets file, one KEY=VALUE per line.
type Config struct {
	LDAP     LDAP     `mapstructure:"ldap"`
	Database Database `mapstructure:"database"`
	Sync     Sync     `mapstructure:"sync"`
	Ops      Ops      `mapstructure:"ops"`

	// SecretsFile is parsed for LDAP_PASSWORD, DATABASE_PASSWORDS and
	// PW_ENCRYPT_PASSWORD lines. Values fill config fields that are
	// still empty, so the environment wins over the file.
	SecretsFile string `mapstructure:"secrets_file"`

	// Verbose switches logging to debug level.
	Verbose bool `mapstructure:"verbose"`

	// LogJSON switches from console to JSON log output.
	LogJSON bool `mapstructure:"log_json"`
}

// envBindings maps config keys to the environment names the deployment
// sets. The names predate this program and are part of its interface.
var envBindings = map[string]string{
	"ldap.uri":              "LDAP_URI",
	"ldap.bind_dn":          "LDAP_BIND_DN",
	"ldap.password":         "LDAP_PASSWORD",
	"ldap.base_dn":          "LDAP_BASE_DN",
	"ldap.user_ou":          "LDAP_USER_OU",
	"database.host":         "DATABASE_HOST",
	"database.port":         "DATABASE_PORT",
	"database.user":         "DATABASE_USER",
	"database.instances":    "DATABASE_INSTANCES",
	"database.passwords":    "DATABASE_PASSWORDS",
	"database.readonly":     "READONLY_DATABASES",
	"database.sslmode":      "DATABASE_SSLMODE",
	"sync.max_records":      "MAX_RECORDS",
	"sync.sleeptime":        "SLEEPTIME",
	"sync.shared_database":  "SHARED_DATABASE",
	"sync.encrypt_password": "PW_ENCRYPT_PASSWORD",
	"sync.fixed_iv":         "PW_ENCRYPT_FIXED_IV",
	"sync.state_file":       "STATE_FILE",
	"sync.liveness_file":    "LIVENESS_FILE",
	"sync.terminate":        "TERMINATE",
	"ops.listen":            "OPS_LISTEN",
	"secrets_file":          "SECRETS_FILE",
	"verbose":               "VERBOSE",
	"log_json":              "LOG_JSON",
}

// Load reads configuration from the environment, an optional YAML file
// and the secrets file, applies defaults and validates everything the
// sync needs. configPath empty means environment and defaults only.
func Load(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSource is Load for commands that only touch the source databases,
// such as the CSV export. The directory and cipher settings may be
// absent.
func LoadSource(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateSource(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDirectory is Load for commands that only touch the directory,
// such as mark-etd. The database settings may be absent.
func LoadDirectory(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateDirectory(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.applySecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setupViper registers defaults and the environment bindings. Every key
// gets a default so Unmarshal sees the full key set.
func setupViper(v *viper.Viper, configPath string) {
	v.SetDefault("ldap.uri", "ldap://localhost:389")
	v.SetDefault("ldap.bind_dn", "")
	v.SetDefault("ldap.password", "")
	v.SetDefault("ldap.base_dn", "")
	v.SetDefault("ldap.user_ou", "ou=user")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "idnsync")
	v.SetDefault("database.instances", "")
	v.SetDefault("database.passwords", "")
	v.SetDefault("database.readonly", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("sync.max_records", 100)
	v.SetDefault("sync.sleeptime", 30)
	v.SetDefault("sync.shared_database", "ph15")
	v.SetDefault("sync.encrypt_password", "")
	v.SetDefault("sync.fixed_iv", "")
	v.SetDefault("sync.state_file", "")
	v.SetDefault("sync.liveness_file", "/tmp/idnsync.alive")
	v.SetDefault("sync.terminate", false)
	v.SetDefault("ops.listen", ":9090")
	v.SetDefault("secrets_file", "/etc/passwords")
	v.SetDefault("verbose", false)
	v.SetDefault("log_json", false)

	for key, env := range envBindings {
		// BindEnv only errors on empty input.
		_ = v.BindEnv(key, env)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// readConfigFile reads the YAML file when one was named. A missing file
// is only acceptable when the path came from a default.
func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file %s not found", configPath)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks the full sync configuration. Field rules live in the
// validate struct tags; cross-field rules follow.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := cfg.Tenants(); err != nil {
		return err
	}

	if cfg.Sync.FixedIV != "" {
		iv, err := hex.DecodeString(cfg.Sync.FixedIV)
		if err != nil {
			return fmt.Errorf("fixed_iv is not hex: %w", err)
		}
		if len(iv) != 16 {
			return fmt.Errorf("fixed_iv must be 16 bytes, got %d", len(iv))
		}
	}
	return nil
}

// ValidateSource checks only the database side. The export runs in
// places where no directory credentials exist.
func ValidateSource(cfg *Config) error {
	if err := validate.Struct(cfg.Database); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := cfg.Tenants(); err != nil {
		return err
	}
	return nil
}

// ValidateDirectory checks only the directory side, for commands that
// never open a source database.
func ValidateDirectory(cfg *Config) error {
	if err := validate.Struct(cfg.LDAP); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SleepInterval returns the between-rounds pause as a duration.
func (c *Config) SleepInterval() time.Duration {
	return time.Duration(c.Sync.SleepSeconds) * time.Second
}

// FixedIVBytes returns the decoded fixed IV, nil when unset. Call after
// Validate.
func (c *Config) FixedIVBytes() []byte {
	if c.Sync.FixedIV == "" {
		return nil
	}
	iv, err := hex.DecodeString(c.Sync.FixedIV)
	if err != nil {
		return nil
	}
	return iv
}
