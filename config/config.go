package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/known"
	"github.com/masmgr/revtrack/internal/logger"
)

// Supported repository kinds.
const (
	SCMPerforce   = "p4"
	SCMSubversion = "svn"
	SCMGit        = "git"
)

// Supported store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Environment variables read on top of the configuration file.
const (
	EnvP4Password  = "P4PASSWD"
	EnvSVNPassword = "SVN_PASSWORD"
	EnvStoreDSN    = "REVTRACK_STORE_DSN"
)

// Config is the root configuration structure.
type Config struct {
	SCM            SCMConfig     `json:"scm" yaml:"scm"`
	Store          StoreConfig   `json:"store" yaml:"store"`
	Cache          CacheConfig   `json:"cache" yaml:"cache"`
	Known          KnownConfig   `json:"known" yaml:"known"`
	Log            logger.Config `json:"log" yaml:"log"`
	TimeoutSeconds int           `json:"timeoutSeconds" yaml:"timeout_seconds"` // Default: 300
}

// SCMConfig selects and configures the repository.
type SCMConfig struct {
	Type string    `json:"type" yaml:"type"` // p4, svn or git
	P4   P4Config  `json:"p4" yaml:"p4"`
	SVN  SVNConfig `json:"svn" yaml:"svn"`
	Git  GitConfig `json:"git" yaml:"git"`
}

// P4Config holds Perforce connection settings.
type P4Config struct {
	Port     string `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Client   string `json:"client" yaml:"client"`
	Path     string `json:"path" yaml:"path"`     // Depot path filter, default //...
	Binary   string `json:"binary" yaml:"binary"` // Default: p4
	Password string `json:"-" yaml:"-"`           // From P4PASSWD
}

// SVNConfig holds Subversion connection settings.
type SVNConfig struct {
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username" yaml:"username"`
	Binary   string `json:"binary" yaml:"binary"` // Default: svn
	Password string `json:"-" yaml:"-"`           // From SVN_PASSWORD
}

// GitConfig holds local Git repository settings.
type GitConfig struct {
	Path             string   `json:"path" yaml:"path"`
	ShelvedRefPrefix string   `json:"shelvedRefPrefix" yaml:"shelved_ref_prefix"` // Default: refs/shelved/
	Include          []string `json:"include" yaml:"include"`
	Exclude          []string `json:"exclude" yaml:"exclude"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // memory, sqlite or postgres
	DSN    string `json:"dsn" yaml:"dsn"`
}

// CacheConfig controls the revision cache.
type CacheConfig struct {
	WindowDays int `json:"windowDays" yaml:"window_days"` // Default: 21
	// Timezone names the location whose calendar defines "today", e.g. the
	// repository server's. Empty means the local zone.
	Timezone string `json:"timezone" yaml:"timezone"`
}

// KnownConfig controls how review descriptions are scanned.
type KnownConfig struct {
	Patterns []string `json:"patterns" yaml:"patterns"` // Regexes with a (?P<rev>...) group
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		SCM: SCMConfig{
			Type: SCMPerforce,
			P4: P4Config{
				Path:   "//...",
				Binary: "p4",
			},
			SVN: SVNConfig{
				Binary: "svn",
			},
			Git: GitConfig{
				Path:             ".",
				ShelvedRefPrefix: "refs/shelved/",
				Include:          []string{},
				Exclude:          []string{},
			},
		},
		Store: StoreConfig{
			Driver: StoreSQLite,
			DSN:    ".revtrack.db",
		},
		Cache: CacheConfig{
			WindowDays: 21,
		},
		Known: KnownConfig{
			Patterns: slices.Clone(known.DefaultPatterns),
		},
		Log: logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			Rotation: logger.Rotation{
				MaxSize:    100,
				MaxBackups: 10,
				MaxAge:     7,
				Compress:   true,
			},
		},
		TimeoutSeconds: 300,
	}
}

// LoadEnv loads variables from the given .env files, or from ./.env when none
// are given. Missing files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.E(errs.Config, "load env "+f, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a file, merging with defaults, and
// applies environment overrides. Files ending in .yaml or .yml are read as
// YAML, everything else as JSON.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		// Try default locations
		candidates := []string{".revtrack.json", ".revtrack.yaml"}
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			candidates = append(candidates, filepath.Join(home, ".revtrack.json"))
		} else if envHome := os.Getenv("HOME"); envHome != "" {
			candidates = append(candidates, filepath.Join(envHome, ".revtrack.json"))
		}
		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, errs.E(errs.Config, "load config", fmt.Errorf("%s: %w", path, err))
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, errs.E(errs.Config, "load config", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvP4Password); v != "" {
		c.SCM.P4.Password = v
	}
	if v := os.Getenv(EnvSVNPassword); v != "" {
		c.SCM.SVN.Password = v
	}
	if v := os.Getenv(EnvStoreDSN); v != "" {
		c.Store.DSN = v
	}
}

// Validate checks the configuration for values the tracker cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.SCM.Type {
	case SCMPerforce:
		if c.SCM.P4.Port == "" {
			problems = append(problems, "scm.p4.port is required")
		}
	case SCMSubversion:
		if c.SCM.SVN.URL == "" {
			problems = append(problems, "scm.svn.url is required")
		}
	case SCMGit:
		if c.SCM.Git.Path == "" {
			problems = append(problems, "scm.git.path is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("scm.type %q is not one of p4, svn, git", c.SCM.Type))
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			problems = append(problems, "store.dsn is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver))
	}

	if c.Cache.WindowDays < 1 {
		problems = append(problems, "cache.windowDays must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := known.NewExtractor(c.Known.Patterns); err != nil {
		problems = append(problems, err.Error())
	}
	if c.TimeoutSeconds < 0 {
		problems = append(problems, "timeoutSeconds must not be negative")
	}

	if len(problems) > 0 {
		return errs.Errorf(errs.Config, "validate config", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the time zone that defines calendar days.
func (c *Config) Location() (*time.Location, error) {
	if c.Cache.Timezone == "" || c.Cache.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Cache.Timezone)
	if err != nil {
		return nil, fmt.Errorf("cache.timezone: %w", err)
	}
	return loc, nil
}

// Window returns the freshness window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Cache.WindowDays) * 24 * time.Hour
}

// Timeout returns the per-command timeout, or 0 for none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RepositoryPath returns the address of the configured repository. It
// identifies the repository's cache namespace.
func (c *Config) RepositoryPath() string {
	switch c.SCM.Type {
	case SCMPerforce:
		return c.SCM.P4.Port + c.SCM.P4.Path
	case SCMSubversion:
		return c.SCM.SVN.URL
	case SCMGit:
		if abs, err := filepath.Abs(c.SCM.Git.Path); err == nil {
			return abs
		}
		return c.SCM.Git.Path
	default:
		return ""
	}
}
