// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/matrix-migrate/lib/secret"
)

// EnvPrefix prefixes every environment override, for example
// MATRIX_MIGRATE_OLD_PASSWORD or MATRIX_MIGRATE_SEND_RATE.
const EnvPrefix = "MATRIX_MIGRATE"

const (
	// DefaultFileName is the credentials file looked up in the home
	// directory when no --config is given.
	DefaultFileName = ".server_creds.toml"

	// DefaultLogFile is where the run log is appended unless
	// overridden.
	DefaultLogFile = "${HOME}/log/matrix-migrate.log"
)

// Account is one side of the migration. Secrets may be given inline or
// through a file; inline values win.
type Account struct {
	Server       string `mapstructure:"server"        toml:"server"                  yaml:"server"                  validate:"required,homeserver"`
	User         string `mapstructure:"user"          toml:"user,omitempty"          yaml:"user,omitempty"`
	Password     string `mapstructure:"password"      toml:"password,omitempty"      yaml:"password,omitempty"`
	PasswordFile string `mapstructure:"password_file" toml:"password_file,omitempty" yaml:"password_file,omitempty"`
	Token        string `mapstructure:"token"         toml:"token,omitempty"         yaml:"token,omitempty"`
	TokenFile    string `mapstructure:"token_file"    toml:"token_file,omitempty"    yaml:"token_file,omitempty"`
}

func (a Account) hasPassword() bool { return a.Password != "" || a.PasswordFile != "" }
func (a Account) hasToken() bool    { return a.Token != "" || a.TokenFile != "" }

// Credentials copies the account's password and token into locked
// memory. Either may be nil when not configured. The caller closes
// both.
func (a Account) Credentials() (password, token *secret.Buffer, err error) {
	password, err = readSecret(a.Password, a.PasswordFile)
	if err != nil {
		return nil, nil, fmt.Errorf("password: %w", err)
	}
	token, err = readSecret(a.Token, a.TokenFile)
	if err != nil {
		if password != nil {
			password.Close()
		}
		return nil, nil, fmt.Errorf("token: %w", err)
	}
	return password, token, nil
}

func readSecret(inline, path string) (*secret.Buffer, error) {
	switch {
	case inline != "":
		return secret.FromString(inline)
	case path != "":
		return secret.ReadFromPath(path)
	default:
		return nil, nil
	}
}

// Config is the complete run configuration.
type Config struct {
	// Old is the source account, New the destination.
	Old Account `mapstructure:"old" toml:"old" yaml:"old"`
	New Account `mapstructure:"new" toml:"new" yaml:"new"`

	Verbose bool `mapstructure:"verbose" toml:"verbose" yaml:"verbose"`

	// LogFile receives every record at debug level. Empty disables it.
	LogFile string `mapstructure:"log_file" toml:"log_file" yaml:"log_file"`

	// Ledger is the SQLite database remembering migrated events.
	// Empty runs without one.
	Ledger string `mapstructure:"ledger" toml:"ledger,omitempty" yaml:"ledger,omitempty"`

	// MetricsFile receives the run's counters in the Prometheus text
	// format when the run ends.
	MetricsFile string `mapstructure:"metrics_file" toml:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`

	Strict bool `mapstructure:"strict" toml:"strict" yaml:"strict"`

	// SendRate caps messages per second on the destination. Zero is
	// unlimited.
	SendRate float64 `mapstructure:"send_rate" toml:"send_rate" yaml:"send_rate" validate:"gte=0"`

	// RequestTimeout bounds each HTTP request. Zero means no bound.
	RequestTimeout time.Duration `mapstructure:"request_timeout" toml:"request_timeout" yaml:"request_timeout" validate:"gte=0"`
}

// binding ties a configuration key to its command-line flag.
type binding struct {
	key       string
	flag      string
	shorthand string
	usage     string
}

var stringBindings = []binding{
	{"old.server", "old-server", "1", "source homeserver URL"},
	{"old.user", "old-user", "t", "source user name"},
	{"old.password", "old-password", "p", "source password"},
	{"old.token", "old-token", "v", "source access token"},
	{"new.server", "new-server", "2", "destination homeserver URL"},
	{"new.user", "new-user", "u", "destination user name"},
	{"new.password", "new-password", "q", "destination password"},
	{"new.token", "new-token", "w", "destination access token"},
	{"old.password_file", "old-password-file", "", "file holding the source password"},
	{"old.token_file", "old-token-file", "", "file holding the source access token"},
	{"new.password_file", "new-password-file", "", "file holding the destination password"},
	{"new.token_file", "new-token-file", "", "file holding the destination access token"},
	{"log_file", "log-file", "", "append a debug log here (default " + DefaultLogFile + ")"},
	{"ledger", "ledger", "", "SQLite ledger of migrated events; re-runs skip what it records"},
	{"metrics_file", "metrics-file", "", "write Prometheus counters here when the run ends"},
}

// AddFlags registers every configuration override, plus --config, on
// flagSet.
func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringP("config", "c", "", "credentials file (default ~/"+DefaultFileName+")")
	for _, b := range stringBindings {
		flagSet.StringP(b.flag, b.shorthand, "", b.usage)
	}
	flagSet.BoolP("verbose", "V", false, "log progress to stderr")
	flagSet.Bool("strict", false, "fail on unreadable history pages and media instead of skipping them")
	flagSet.Float64("send-rate", 0, "maximum messages per second on the destination (0 is unlimited)")
	flagSet.Duration("request-timeout", 0, "timeout for each HTTP request (0 is none)")
}

func allBindings() []binding {
	return append(append([]binding(nil), stringBindings...),
		binding{key: "verbose", flag: "verbose"},
		binding{key: "strict", flag: "strict"},
		binding{key: "send_rate", flag: "send-rate"},
		binding{key: "request_timeout", flag: "request-timeout"},
	)
}

// DefaultPath returns ~/.server_creds.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Load resolves the configuration. Sources, lowest priority first:
// defaults, the credentials file, MATRIX_MIGRATE_* environment
// variables, then flags the user set. An empty path selects
// DefaultPath, which may be absent; an explicit path must exist. The
// file format follows its extension (.toml, .yaml, .yml or .json).
// flagSet may be nil.
func Load(path string, flagSet *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("send_rate", 0.0)
	v.SetDefault("request_timeout", time.Duration(0))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, b := range allBindings() {
		if err := v.BindEnv(b.key); err != nil {
			return nil, fmt.Errorf("binding %s to the environment: %w", b.key, err)
		}
		if flagSet == nil {
			continue
		}
		if flag := flagSet.Lookup(b.flag); flag != nil {
			if err := v.BindPFlag(b.key, flag); err != nil {
				return nil, fmt.Errorf("binding --%s: %w", b.flag, err)
			}
		}
	}

	required := path != ""
	if !required {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	path = expandVars(path, nil)
	if _, err := os.Stat(path); err == nil || required {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.expandVariables()
	return &cfg, nil
}

// expandVariables expands ${VAR}, ${VAR:-default} and a leading ~ in
// path fields.
func (c *Config) expandVariables() {
	c.LogFile = expandVars(c.LogFile, nil)
	c.Ledger = expandVars(c.Ledger, nil)
	c.MetricsFile = expandVars(c.MetricsFile, nil)
	for _, account := range []*Account{&c.Old, &c.New} {
		account.PasswordFile = expandVars(account.PasswordFile, nil)
		account.TokenFile = expandVars(account.TokenFile, nil)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	if s == "~" || strings.HasPrefix(s, "~/") {
		s = "${HOME}" + s[1:]
	}
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		if name == "HOME" {
			if home, err := os.UserHomeDir(); err == nil {
				return home
			}
		}
		return defaultValue
	})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("homeserver", func(fl validator.FieldLevel) bool {
		parsed, err := url.Parse(fl.Field().String())
		return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
	}); err != nil {
		panic(fmt.Sprintf("config: registering homeserver validation: %v", err))
	}
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		account := sl.Current().Interface().(Account)
		if !account.hasPassword() && !account.hasToken() {
			sl.ReportError(account.Password, "password", "Password", "credential", "")
		}
		if account.hasPassword() && account.User == "" {
			sl.ReportError(account.User, "user", "User", "required_with_password", "")
		}
	}, Account{})
	return v
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	var errs []error
	for _, fieldError := range fieldErrors {
		// Drop the leading "Config." so names read like file keys.
		_, key, _ := strings.Cut(fieldError.Namespace(), ".")
		errs = append(errs, fmt.Errorf("%s: %s", key, describe(fieldError)))
	}
	return errors.Join(errs...)
}

func describe(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "homeserver":
		return fmt.Sprintf("%q is not an http or https URL", fieldError.Value())
	case "credential":
		return "a password or token is required"
	case "required_with_password":
		return "is required for password login"
	case "gte":
		return "must not be negative"
	default:
		return fmt.Sprintf("failed %q", fieldError.Tag())
	}
}

// Redacted returns a copy with inline secrets masked.
func (c *Config) Redacted() *Config {
	copied := *c
	for _, account := range []*Account{&copied.Old, &copied.New} {
		if account.Password != "" {
			account.Password = "REDACTED"
		}
		if account.Token != "" {
			account.Token = "REDACTED"
		}
	}
	return &copied
}

// Write encodes the configuration to w as "toml" or "yaml". Secrets
// are written as they are; pass a Redacted copy for display.
func (c *Config) Write(w io.Writer, format string) error {
	switch format {
	case "toml":
		return toml.NewEncoder(w).Encode(c)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(c); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unknown configuration format %q (want toml or yaml)", format)
	}
}
