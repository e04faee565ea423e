package tinydb

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Config controls how Open creates or attaches to a database file. The
// zero value is not valid on its own; use defaultConfig as the starting
// point and layer Options and/or a loaded file on top of it.
type Config struct {
	PageSize        int    `yaml:"page_size"`
	CacheSize       int    `yaml:"cache_size"`
	EnableJournaling bool  `yaml:"enable_journaling"`
	DatabaseName    string `yaml:"database_name"`
}

func defaultConfig(path string) Config {
	return Config{
		PageSize:         4096,
		CacheSize:        256,
		EnableJournaling: true,
		DatabaseName:     filepath.Base(path),
	}
}

// Option customizes a Config before Open applies it.
type Option func(*Config)

// WithPageSize sets the on-disk page size. Only meaningful the first
// time a database file is created; an existing file keeps whatever
// page size it was created with regardless of this option.
func WithPageSize(size int) Option {
	return func(c *Config) { c.PageSize = size }
}

// WithCacheSize sets the page cache's capacity, in pages.
func WithCacheSize(pages int) Option {
	return func(c *Config) { c.CacheSize = pages }
}

// WithJournaling toggles the before-image journal. Disabling it
// forfeits crash safety: a process killed mid-commit can leave the
// database file partially written with nothing to recover from.
func WithJournaling(enabled bool) Option {
	return func(c *Config) { c.EnableJournaling = enabled }
}

// WithDatabaseName overrides the name recorded for the database,
// independent of its file path.
func WithDatabaseName(name string) Option {
	return func(c *Config) { c.DatabaseName = name }
}

// fileConfig mirrors Config but with pointer fields, so the YAML
// decoder can tell "absent from the file" apart from "set to zero".
type fileConfig struct {
	PageSize         *int  `yaml:"page_size"`
	CacheSize        *int  `yaml:"cache_size"`
	EnableJournaling *bool `yaml:"enable_journaling"`
	DatabaseName     *string `yaml:"database_name"`
}

// LoadConfigFile reads a YAML configuration file (keys page_size,
// cache_size, enable_journaling, database_name), returning an Option
// that applies only the fields the file sets.
func LoadConfigFile(path string) (Option, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	loaded := fileConfig{}
	if err := yaml.NewDecoder(f).Decode(&loaded); err != nil {
		return nil, err
	}
	return func(c *Config) {
		if loaded.PageSize != nil {
			c.PageSize = *loaded.PageSize
		}
		if loaded.CacheSize != nil {
			c.CacheSize = *loaded.CacheSize
		}
		if loaded.EnableJournaling != nil {
			c.EnableJournaling = *loaded.EnableJournaling
		}
		if loaded.DatabaseName != nil {
			c.DatabaseName = *loaded.DatabaseName
		}
	}, nil
}
