package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Site     SiteConfig     `toml:"site"`
	NFT      NFTConfig      `toml:"nft"`
	Database DatabaseConfig `toml:"database"`
	Storage  StorageConfig  `toml:"storage"`
	Audio    AudioConfig    `toml:"audio"`
	Logging  LoggingConfig  `toml:"logging"`
	Ngrok    NgrokConfig    `toml:"ngrok"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port           string `toml:"port"`
	Host           string `toml:"host"`
	StaticDir      string `toml:"static_dir"`
	TemplateDir    string `toml:"template_dir"`
	EnableCORS     bool   `toml:"enable_cors"`
	ReadTimeout    int    `toml:"read_timeout_seconds"`
	MaxUploadMB    int    `toml:"max_upload_mb"`
	ReloadTemplate bool   `toml:"reload_templates"`
}

// SiteConfig controls how mixtape pages present themselves to link previews.
type SiteConfig struct {
	PublicURL          string `toml:"public_url"`
	DefaultImage       string `toml:"default_image"`
	DefaultTitle       string `toml:"default_title"`
	DefaultDescription string `toml:"default_description"`
}

// NFTConfig points at the services that resolve mixtape assets.
type NFTConfig struct {
	// RPCURL is a DAS-compatible JSON-RPC endpoint used to answer read-meta.
	RPCURL string `toml:"rpc_url"`
	// ReadMetaURL, when set, makes pages resolve assets over HTTP instead of
	// calling the RPC directly.
	ReadMetaURL         string `toml:"read_meta_url"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	CacheTTLSeconds     int    `toml:"cache_ttl_seconds"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// StorageConfig controls where uploaded draft audio is kept.
type StorageConfig struct {
	UploadDir string `toml:"upload_dir"`
}

// AudioConfig controls metadata extraction for uploaded tracks.
type AudioConfig struct {
	SupportedFormats []string `toml:"supported_formats"`
	Workers          int      `toml:"workers"`
	QueueSize        int      `toml:"queue_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			StaticDir:   "./static",
			EnableCORS:  true,
			ReadTimeout: 30,
			MaxUploadMB: 100,
		},
		Site: SiteConfig{
			PublicURL:          "https://mixt-ape.com",
			DefaultImage:       "/images/mixtape-1024.png",
			DefaultTitle:       "Mixtape",
			DefaultDescription: "Mixtape",
		},
		NFT: NFTConfig{
			RPCURL:              "https://api.mainnet-beta.solana.com",
			FetchTimeoutSeconds: 15,
			CacheTTLSeconds:     0,
		},
		Database: DatabaseConfig{
			Path: "./mixtape.db",
		},
		Storage: StorageConfig{
			UploadDir: "./uploads",
		},
		Audio: AudioConfig{
			SupportedFormats: []string{".flac", ".mp3", ".wav", ".m4a"},
			Workers:          2,
			QueueSize:        64,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			RequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies overrides
// from the environment (and a .env file next to the working directory).
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides file values with non-empty environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MIXTAPE_RPC_URL"); v != "" {
		c.NFT.RPCURL = v
	}
	if v := os.Getenv("MIXTAPE_READ_META_URL"); v != "" {
		c.NFT.ReadMetaURL = v
	}
	if v := os.Getenv("MIXTAPE_PUBLIC_URL"); v != "" {
		c.Site.PublicURL = v
	}
	if v := os.Getenv("NGROK_AUTHTOKEN"); v != "" && c.Ngrok.AuthToken == "" {
		c.Ngrok.AuthToken = v
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Mixtape Server Configuration
# Edit the values below to customize your server settings.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server max upload size must be at least 1 MB")
	}

	if c.NFT.RPCURL == "" && c.NFT.ReadMetaURL == "" {
		return fmt.Errorf("either nft rpc_url or read_meta_url must be set")
	}
	if c.NFT.FetchTimeoutSeconds < 0 {
		return fmt.Errorf("nft fetch timeout cannot be negative")
	}
	if c.NFT.CacheTTLSeconds < 0 {
		return fmt.Errorf("nft cache ttl cannot be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("storage upload dir cannot be empty")
	}

	if len(c.Audio.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}
	if c.Audio.Workers < 1 {
		return fmt.Errorf("audio workers must be at least 1")
	}
	if c.Audio.QueueSize < 1 {
		return fmt.Errorf("audio queue size must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}
