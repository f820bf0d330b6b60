package akapi

import (
	"fmt"
	"os"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the file form of a Client's settings.
//
// Example configuration (HCL):
//
//	base_url         = "https://act.example.org"
//	allow_writes     = false
//	console_logging  = 1
//	alert_on_failure = true
//	timeout          = "30s"
//	read_safe = [
//	  "^POST report/run/[a-zA-Z0-9_\\-]+/? ",
//	]
type Config struct {
	// BaseURL is the scheme and host of the ActionKit instance.
	BaseURL string `hcl:"base_url"`

	// APIBase is the REST prefix. Default: /rest/v1/
	APIBase string `hcl:"api_base,optional"`

	// AllowWrites is the initial write policy. Default: false
	AllowWrites bool `hcl:"allow_writes,optional"`

	// ConsoleLogging is 0 (silent), 1 (summary) or 2 (payloads).
	// Default: 1
	ConsoleLogging *int `hcl:"console_logging,optional"`

	// AlertOnFailure notifies the user of every failure. Default: true
	AlertOnFailure *bool `hcl:"alert_on_failure,optional"`

	// Timeout for each network exchange, as a Go duration. Default: 30s
	Timeout string `hcl:"timeout,optional"`

	// CSRFCookie names the CSRF token. Default: csrftoken
	CSRFCookie string `hcl:"csrf_cookie,optional"`

	// ReadSafe replaces the write exception table when set.
	ReadSafe []string `hcl:"read_safe,optional"`

	// Coalesce merges concurrent identical cacheable calls.
	Coalesce bool `hcl:"coalesce,optional"`
}

var httpURLPattern = regexp.MustCompile(`^https?://[^/\s]+`)

// LoadConfig reads and validates an HCL configuration file.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}

	var cfg Config
	if err := hclsimple.DecodeFile(filename, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.Match(httpURLPattern)),
		validation.Field(&c.APIBase, validation.Match(regexp.MustCompile(`^/(.*/)?$`))),
		validation.Field(&c.ConsoleLogging, validation.Min(LogSilent), validation.Max(LogPayloads)),
		validation.Field(&c.Timeout, validation.By(validDuration)),
		validation.Field(&c.ReadSafe, validation.Each(validation.By(validPattern))),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func validDuration(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validPattern(value interface{}) error {
	s, _ := value.(string)
	if _, err := regexp.Compile(s); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}

// Options converts the configuration into client options. Options given
// after these to New override them.
func (c *Config) Options() []Option {
	opts := []Option{
		WithBaseURL(c.BaseURL),
		WithAllowWrites(c.AllowWrites),
	}
	if c.APIBase != "" {
		opts = append(opts, WithAPIBase(c.APIBase))
	}
	if c.ConsoleLogging != nil {
		opts = append(opts, WithConsoleLogging(*c.ConsoleLogging))
	}
	if c.AlertOnFailure != nil {
		opts = append(opts, WithAlertOnFailure(*c.AlertOnFailure))
	}
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err == nil {
			opts = append(opts, WithTimeout(d))
		}
	}
	if c.CSRFCookie != "" {
		opts = append(opts, WithCSRFCookie(c.CSRFCookie))
	}
	if c.ReadSafe != nil {
		opts = append(opts, WithReadSafePatterns(c.ReadSafe...))
	}
	if c.Coalesce {
		opts = append(opts, WithCoalescing())
	}
	return opts
}
