// Package config provides centralized configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Sign-in presentation settings accepted by auth.sign_in_mode.
const (
	SignInModeAuto     = "auto"
	SignInModeOverlay  = "overlay"
	SignInModeBlocking = "blocking"
)

// Config holds all configuration values for bridges-forms.
type Config struct {
	BaseURL         string              `mapstructure:"base_url" yaml:"base_url"`
	SearchURL       string              `mapstructure:"search_url" yaml:"search_url"`
	AllowedDomain   string              `mapstructure:"allowed_domain" yaml:"allowed_domain"`
	Sites           []string            `mapstructure:"sites" yaml:"sites"`
	Forms           []FormConfig        `mapstructure:"forms" yaml:"forms"`
	SiteFormRules   map[string][]string `mapstructure:"site_form_rules" yaml:"site_form_rules"`
	SearchDebounce  time.Duration       `mapstructure:"search_debounce" yaml:"search_debounce"`
	MinSearchLength int                 `mapstructure:"min_search_length" yaml:"min_search_length"`
	SearchTimeout   time.Duration       `mapstructure:"search_timeout" yaml:"search_timeout"`
	LaunchDelay     time.Duration       `mapstructure:"launch_delay" yaml:"launch_delay"`
	DataDir         string              `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel        string              `mapstructure:"log_level" yaml:"log_level"`
	LogFile         string              `mapstructure:"log_file" yaml:"log_file"`
	Auth            AuthConfig          `mapstructure:"auth" yaml:"auth"`
}

// FormConfig declares one external form. IDs are lowercase because Viper
// folds map keys, and site_form_rules is keyed by form ID.
type FormConfig struct {
	ID                string `mapstructure:"id" yaml:"id"`
	Name              string `mapstructure:"name" yaml:"name"`
	Path              string `mapstructure:"path" yaml:"path"`
	Category          string `mapstructure:"category" yaml:"category"`
	SupportsPreFill   bool   `mapstructure:"supports_pre_fill" yaml:"supports_pre_fill"`
	RequiresAuth      bool   `mapstructure:"requires_auth" yaml:"requires_auth"`
	RequiresContact   bool   `mapstructure:"requires_contact" yaml:"requires_contact"`
	ProgramTypeFilter string `mapstructure:"program_type_filter" yaml:"program_type_filter,omitempty"`
}

// AuthConfig describes the organization identity provider.
type AuthConfig struct {
	ClientID   string   `mapstructure:"client_id" yaml:"client_id"`
	Tenant     string   `mapstructure:"tenant" yaml:"tenant"`
	Authority  string   `mapstructure:"authority" yaml:"authority,omitempty"`
	Scopes     []string `mapstructure:"scopes" yaml:"scopes"`
	SignInMode string   `mapstructure:"sign_in_mode" yaml:"sign_in_mode"`
}

// Default returns the built-in Bridges catalog and settings.
func Default() *Config {
	return &Config{
		BaseURL:       "https://bridgestowork.my.site.com/forms/s",
		SearchURL:     "https://bridgestowork.my.site.com/forms/services/apexrest/contactsearch",
		AllowedDomain: "bridgestowork.org",
		Sites: []string{
			"Atlanta",
			"Boston",
			"Chicago",
			"Dallas",
			"Fort Worth",
			"Los Angeles",
			"New York City",
			"Oakland",
			"Philadelphia",
			"Richmond",
			"San Francisco",
		},
		Forms: []FormConfig{
			{ID: "interest", Name: "Interest Form", Path: "/interest-form", Category: "participant"},
			{ID: "application", Name: "Application Form", Path: "/bridges-application", Category: "participant",
				SupportsPreFill: true, RequiresAuth: true, ProgramTypeFilter: "jobPlacement"},
			{ID: "enrollment", Name: "Enrollment Form", Path: "/bridges-enrollment", Category: "participant",
				SupportsPreFill: true, RequiresAuth: true, RequiresContact: true, ProgramTypeFilter: "jobPlacement"},
			{ID: "pre-ets-interest", Name: "Pre-ETS Interest Form", Path: "/pre-ets-interest-form", Category: "other"},
			{ID: "educational-placement", Name: "Educational Placement Form", Path: "/educational-placement-interest-form", Category: "other"},
			{ID: "mip-application", Name: "MIP Application Form", Path: "/mip-application", Category: "other"},
		},
		SiteFormRules: map[string][]string{
			"pre-ets-interest":      {"Atlanta", "New York City", "Philadelphia"},
			"educational-placement": {"Oakland", "Richmond", "San Francisco"},
			"mip-application":       {"New York City"},
		},
		SearchDebounce:  300 * time.Millisecond,
		MinSearchLength: 2,
		SearchTimeout:   10 * time.Second,
		LaunchDelay:     500 * time.Millisecond,
		DataDir:         defaultDataDir(),
		LogLevel:        "info",
		LogFile:         "",
		Auth: AuthConfig{
			ClientID:   "b734621f-54bd-40ca-ac79-09f78c143df5",
			Tenant:     "bridgestowork.org",
			Scopes:     []string{"openid", "profile", "email", "offline_access"},
			SignInMode: SignInModeAuto,
		},
	}
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults.
// CLI flags are applied by the caller on the returned struct.
func Load() (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("bridges-forms")

	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("search_url", def.SearchURL)
	v.SetDefault("allowed_domain", def.AllowedDomain)
	v.SetDefault("sites", def.Sites)
	v.SetDefault("search_debounce", def.SearchDebounce)
	v.SetDefault("min_search_length", def.MinSearchLength)
	v.SetDefault("search_timeout", def.SearchTimeout)
	v.SetDefault("launch_delay", def.LaunchDelay)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("auth.tenant", def.Auth.Tenant)
	v.SetDefault("auth.scopes", def.Auth.Scopes)
	v.SetDefault("auth.sign_in_mode", def.Auth.SignInMode)

	v.SetEnvPrefix("BRIDGES")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv only sees keys Viper already knows about, so nested and
	// default-less keys are bound explicitly.
	bindings := map[string]string{
		"base_url":          "BRIDGES_BASE_URL",
		"search_url":        "BRIDGES_SEARCH_URL",
		"allowed_domain":    "BRIDGES_ALLOWED_DOMAIN",
		"data_dir":          "BRIDGES_DATA_DIR",
		"log_level":         "BRIDGES_LOG_LEVEL",
		"log_file":          "BRIDGES_LOG_FILE",
		"auth.client_id":    "BRIDGES_AUTH_CLIENT_ID",
		"auth.tenant":       "BRIDGES_AUTH_TENANT",
		"auth.authority":    "BRIDGES_AUTH_AUTHORITY",
		"auth.sign_in_mode": "BRIDGES_AUTH_SIGN_IN_MODE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Forms and rules are replaced wholesale rather than merged key by key.
	if len(cfg.Forms) == 0 {
		cfg.Forms = def.Forms
	}
	if cfg.SiteFormRules == nil {
		cfg.SiteFormRules = def.SiteFormRules
	}

	return &cfg, nil
}

// Validate checks the settings that every component relies on.
// Catalog-level consistency (form IDs, rules) is checked by the catalog package.
func (c *Config) Validate() error {
	var errs []error

	if err := requireAbsoluteURL("base_url", c.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := requireAbsoluteURL("search_url", c.SearchURL); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.AllowedDomain) == "" {
		errs = append(errs, errors.New("allowed_domain is required"))
	}
	if len(c.Sites) == 0 {
		errs = append(errs, errors.New("at least one site is required"))
	}
	if c.SearchDebounce <= 0 {
		errs = append(errs, fmt.Errorf("search_debounce must be positive, got %s", c.SearchDebounce))
	}
	if c.MinSearchLength <= 0 {
		errs = append(errs, fmt.Errorf("min_search_length must be positive, got %d", c.MinSearchLength))
	}
	if c.LaunchDelay < 0 {
		errs = append(errs, fmt.Errorf("launch_delay must not be negative, got %s", c.LaunchDelay))
	}
	switch c.Auth.SignInMode {
	case SignInModeAuto, SignInModeOverlay, SignInModeBlocking, "":
	default:
		errs = append(errs, fmt.Errorf("auth.sign_in_mode must be auto, overlay or blocking, got %q", c.Auth.SignInMode))
	}

	return errors.Join(errs...)
}

func requireAbsoluteURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/bridges-forms/bridges-forms.yml or $XDG_CONFIG_HOME/bridges-forms/bridges-forms.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bridges-forms", "bridges-forms.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bridges-forms", "bridges-forms.yml")
}

// ProjectPath returns the project-local config path.
func ProjectPath() string {
	return "bridges-forms.yml"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "bridges-forms")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "bridges-forms")
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return write(path, cfg)
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	return write(ProjectPath(), cfg)
}

func write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
