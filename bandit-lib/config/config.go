package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultServerURL is the catalog service every install talks to unless
// overridden.
const DefaultServerURL = "https://thuis.felixband.nl/bandit"

// Config holds application configuration.
type Config struct {
	ServerURL string      `yaml:"server_url"`
	DataDir   string      `yaml:"data_dir"`
	GamesDir  string      `yaml:"games_dir"`
	Compat    CompatLayer `yaml:"compat"`
	Logging   Logging     `yaml:"logging"`
}

// CompatLayer configures the runtime used to launch foreign-platform titles.
type CompatLayer struct {
	Command   string `yaml:"command"`    // launcher binary, e.g. "umu-run"
	PrefixDir string `yaml:"prefix_dir"` // compatibility prefix root
}

// Logging configures log output.
type Logging struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		ServerURL: DefaultServerURL,
		Logging: Logging{
			Format: "text",
			Level:  "info",
		},
	}
}

// configPaths returns the list of paths to search for config file.
func configPaths() []string {
	paths := []string{
		".bandit.yaml",
		".bandit.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "bandit", "config.yaml"),
			filepath.Join(home, ".config", "bandit", "config.yml"),
			filepath.Join(home, ".bandit.yaml"),
		)
	}

	return paths
}

// Load loads configuration from file or returns defaults.
// Priority: env BANDIT_CONFIG > search paths > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Check env for explicit config path
	if envPath := os.Getenv("BANDIT_CONFIG"); envPath != "" {
		if err := cfg.loadFromFile(envPath); err != nil {
			return nil, err
		}
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	// Search for config file
	for _, path := range configPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadFromFile(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvOverrides() {
	if server := os.Getenv("BANDIT_SERVER"); server != "" {
		c.ServerURL = server
	}
	if dataDir := os.Getenv("BANDIT_DATA_DIR"); dataDir != "" {
		c.DataDir = dataDir
	}
	if gamesDir := os.Getenv("BANDIT_GAMES_DIR"); gamesDir != "" {
		c.GamesDir = gamesDir
	}
}

// GetServerURL returns the catalog service base URL, applying defaults.
func (c *Config) GetServerURL() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return DefaultServerURL
}

// GetDataDir returns the application data directory. Defaults to the
// platform data home (e.g. ~/.local/share/bandit).
func (c *Config) GetDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(xdg.DataHome, "bandit")
}

// GetGamesDir returns the default parent directory offered for installs.
func (c *Config) GetGamesDir() string {
	if c.GamesDir != "" {
		return c.GamesDir
	}
	return filepath.Join(c.GetDataDir(), "games")
}

// GetStatePath returns the path of the persisted install-state file.
func (c *Config) GetStatePath() string {
	return filepath.Join(c.GetDataDir(), "saved_paths.json")
}

// GetFavoritesPath returns the path of the persisted favorites file.
func (c *Config) GetFavoritesPath() string {
	return filepath.Join(c.GetDataDir(), "favorites.json")
}

// GetCacheDBPath returns the path of the local catalog cache database.
func (c *Config) GetCacheDBPath() string {
	return filepath.Join(c.GetDataDir(), "catalog.db")
}

// GetCompatPrefixDir returns the compatibility-layer prefix directory.
func (c *Config) GetCompatPrefixDir() string {
	if c.Compat.PrefixDir != "" {
		return c.Compat.PrefixDir
	}
	return filepath.Join(c.GetDataDir(), "compat", "prefix")
}
