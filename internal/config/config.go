package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-dev/rxstore/internal/errors"
	"github.com/vango-dev/rxstore/pkg/storage"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "rxstore.json"

	// DefaultSQLitePath is the database file used by the sqlite backend.
	DefaultSQLitePath = "rxstore.db"

	// DefaultHubListen is the listen address of the relay hub.
	DefaultHubListen = ":7420"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Adapter names.
const (
	AdapterIndexed = "indexed"
	AdapterLocal   = "local"
)

// Config represents the complete rxstore.json configuration.
type Config struct {
	// Database is the logical database name.
	Database string `json:"database,omitempty"`

	// Table is the logical table name.
	Table string `json:"table,omitempty"`

	// Adapter selects the store flavour: "indexed" or "local".
	Adapter string `json:"adapter,omitempty"`

	// Delimiter separates the parts of a prefixed key in the local adapter.
	Delimiter string `json:"delimiter,omitempty"`

	// Backend selects the driver: "memory", "sqlite" or "s3".
	Backend string `json:"backend,omitempty"`

	SQLite SQLiteConfig `json:"sqlite,omitempty"`
	S3     S3Config     `json:"s3,omitempty"`
	Hub    HubConfig    `json:"hub,omitempty"`
	Log    LogConfig    `json:"log,omitempty"`

	// DevMode reports unavailable backends at warn level.
	DevMode bool `json:"devMode,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// SQLiteConfig contains sqlite backend settings.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" keeps everything in process.
	Path string `json:"path,omitempty"`
}

// S3Config contains S3 backend settings.
type S3Config struct {
	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// HubConfig contains relay settings.
type HubConfig struct {
	// Listen is the address "rxstore hub" binds to.
	Listen string `json:"listen,omitempty"`

	// URL is the base URL clients dial. Empty disables cross-process
	// propagation.
	URL string `json:"url,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the specified directory.
// It looks for rxstore.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("RX080").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or pass the settings as flags")
		}
		return nil, errors.New("RX081").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		e := errors.New("RX081").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
		var syntax *json.SyntaxError
		if stderrors.As(err, &syntax) {
			line, col := position(data, syntax.Offset)
			e = e.WithLocation(path, line, col)
		}
		return nil, e
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (line, col int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	before := data[:offset]
	line = bytes.Count(before, []byte("\n")) + 1
	col = len(before) - bytes.LastIndexByte(before, '\n')
	if col > 1 {
		// Offset points past the offending byte.
		col--
	}
	return line, col
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("RX081").Wrap(err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("RX081").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	c.Table, c.Database = storage.Names(c.Table, c.Database)

	if c.Adapter == "" {
		c.Adapter = AdapterIndexed
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = DefaultSQLitePath
	}
	if c.Hub.Listen == "" {
		c.Hub.Listen = DefaultHubListen
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("RX082").
				WithDetail("The s3 backend needs s3.bucket").
				WithSuggestion("Set s3.bucket in " + ConfigFileName)
		}
	default:
		return errors.New("RX083").
			WithDetail("Backend " + quote(c.Backend) + " is not one of memory, sqlite or s3")
	}

	switch c.Adapter {
	case AdapterIndexed:
	case AdapterLocal:
		if c.Backend == BackendS3 {
			return errors.New("RX082").
				WithDetail("The local adapter needs a synchronous area; use the memory or sqlite backend")
		}
	default:
		return errors.New("RX082").
			WithDetail("Adapter " + quote(c.Adapter) + " is not one of indexed or local")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("RX082").
			WithDetail("Log level " + quote(c.Log.Level) + " is not one of debug, info, warn or error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("RX082").
			WithDetail("Log format " + quote(c.Log.Format) + " is not text or json")
	}
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing rxstore.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("RX080").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its closest parent holding rxstore.json.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
