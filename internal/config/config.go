package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string

	// Poll interval for the daemon (in seconds)
	PollInterval int

	// Player source to monitor ("music" or "spotify")
	Player string

	// Services enabled for scrobble dispatch
	EnabledServices []string

	// Seconds to wait after browser authorization before requesting a
	// session key
	AuthSettleDelay int

	// Path to the SQLite database (defaults to <config dir>/etches.db)
	DatabasePath string

	// Last.fm API credentials
	LastFM LastFMConfig

	// Custom scrobble backend
	Custom CustomConfig
}

// LastFMConfig holds Last.fm specific configuration
type LastFMConfig struct {
	APIKey    string
	APISecret string
	Username  string
}

// CustomConfig holds configuration for a self-hosted OAuth scrobble
// backend
type CustomConfig struct {
	Name         string
	BaseURL      string
	ClientID     string
	ClientSecret string
	Handle       string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Set defaults
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("poll_interval", 10)
	v.SetDefault("player", "music")
	v.SetDefault("enabled_services", []string{"lastfm"})
	v.SetDefault("auth_settle_delay", 3)
	v.SetDefault("database_path", filepath.Join(configDir, "etches.db"))

	// Read config file (optional - don't fail if missing)
	_ = v.ReadInConfig()

	// Read from environment variables
	v.SetEnvPrefix("ETCHES")
	v.AutomaticEnv()

	// Map config to struct
	cfg := &Config{
		OutputFormat:    v.GetString("output_format"),
		PollInterval:    v.GetInt("poll_interval"),
		Player:          v.GetString("player"),
		EnabledServices: v.GetStringSlice("enabled_services"),
		AuthSettleDelay: v.GetInt("auth_settle_delay"),
		DatabasePath:    v.GetString("database_path"),
		LastFM: LastFMConfig{
			APIKey:    v.GetString("lastfm.api_key"),
			APISecret: v.GetString("lastfm.api_secret"),
			Username:  v.GetString("lastfm.username"),
		},
		Custom: CustomConfig{
			Name:         v.GetString("custom.name"),
			BaseURL:      v.GetString("custom.base_url"),
			ClientID:     v.GetString("custom.client_id"),
			ClientSecret: v.GetString("custom.client_secret"),
			Handle:       v.GetString("custom.handle"),
		},
	}

	return cfg, nil
}

// PollDuration returns the poll interval as a duration
func (c *Config) PollDuration() time.Duration {
	if c.PollInterval <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.PollInterval) * time.Second
}

// SettleDelay returns the post-authorization settle delay as a duration
func (c *Config) SettleDelay() time.Duration {
	if c.AuthSettleDelay < 0 {
		return 0
	}
	return time.Duration(c.AuthSettleDelay) * time.Second
}

// ServiceEnabled reports whether the named service is enabled
func (c *Config) ServiceEnabled(id string) bool {
	for _, s := range c.EnabledServices {
		if s == id {
			return true
		}
	}
	return false
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "etches")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	// Set config file path
	configDir := getConfigDir()
	configFile := filepath.Join(configDir, "config.yaml")

	// Set values in viper
	v.Set("output_format", c.OutputFormat)
	v.Set("poll_interval", c.PollInterval)
	v.Set("player", c.Player)
	v.Set("enabled_services", c.EnabledServices)
	v.Set("auth_settle_delay", c.AuthSettleDelay)
	v.Set("database_path", c.DatabasePath)
	v.Set("lastfm.api_key", c.LastFM.APIKey)
	v.Set("lastfm.api_secret", c.LastFM.APISecret)
	v.Set("lastfm.username", c.LastFM.Username)
	v.Set("custom.name", c.Custom.Name)
	v.Set("custom.base_url", c.Custom.BaseURL)
	v.Set("custom.client_id", c.Custom.ClientID)
	v.Set("custom.client_secret", c.Custom.ClientSecret)
	v.Set("custom.handle", c.Custom.Handle)

	// Write to file
	return v.WriteConfigAs(configFile)
}
