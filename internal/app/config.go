package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverAzure      = "azure"
	DriverFilesystem = "filesystem"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CATALOG_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CATALOG_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (CATALOG_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Storage      StorageConfig
	Upload       UploadConfig
	Search       SearchConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Health       HealthConfig
}

// StorageConfig selects and configures the image host.
type StorageConfig struct {
	Driver     string `default:"azure" usage:"Image storage driver: azure or filesystem"`
	Prefix     string `default:"foods" usage:"Object key prefix for uploaded images"`
	Azure      AzureConfig
	Filesystem FilesystemConfig
}

// AzureConfig configures Azure Blob Storage. Either ConnectionString or
// ServiceURL must be set; ServiceURL authenticates with the default Azure
// credential chain.
type AzureConfig struct {
	ConnectionString string `usage:"Storage account connection string"`
	ServiceURL       string `usage:"Blob service URL, e.g. https://account.blob.core.windows.net"`
	Container        string `default:"images" usage:"Blob container holding images"`
	PublicBaseURL    string `usage:"Base URL for returned image URLs (CDN); defaults to the container URL"`
	BlockSize        int64  `default:"4194304" usage:"Block size for streamed uploads in bytes"`
	Concurrency      int    `default:"4" usage:"Parallel block uploads per streamed image"`
	CreateContainer  bool   `default:"true" usage:"Create the container on startup when missing"`
}

// FilesystemConfig configures local image storage, served under /images/.
type FilesystemConfig struct {
	Dir           string `default:"data/images" usage:"Directory holding uploaded images"`
	PublicBaseURL string `default:"http://localhost:8080/images" usage:"Base URL for returned image URLs"`
}

// UploadConfig bounds image uploads.
type UploadConfig struct {
	Timeout time.Duration `default:"60s" usage:"Maximum time to wait for the image host"`
	MaxSize int64         `default:"10485760" usage:"Maximum image size in bytes"`
}

// SearchConfig controls name search.
type SearchConfig struct {
	Limit int `default:"20" usage:"Maximum number of search results"`
}

// RateLimitConfig controls the per-client limit on admin writes.
type RateLimitConfig struct {
	Max    int           `default:"60" usage:"Max admin writes per window; 0 disables"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"75s" usage:"Maximum shutdown duration; covers in-flight uploads" flag:"shutdown-timeout"`
}

// HealthConfig controls background health checks.
type HealthConfig struct {
	Interval      time.Duration `default:"10s" usage:"Interval between health checks"`
	MaxGoroutines int           `default:"10000" usage:"Liveness goroutine threshold"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and platform defaults, then validates it.
func LoadConfig() (*Config, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvConfig loads configuration from environment variables and YAML
// files only, without parsing flags or validating. Tools with their own
// flags use it to share the server's storage settings.
func LoadEnvConfig() (*Config, error) {
	return loadConfig(true)
}

func loadConfig(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: skipFlags,
		EnvPrefix: "CATALOG",
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CATALOG_DATABASE_URL or DATABASE_URL")
	}
	switch c.Storage.Driver {
	case DriverAzure:
		if c.Storage.Azure.ConnectionString == "" && c.Storage.Azure.ServiceURL == "" {
			return errors.New("azure storage requires a connection string or service URL")
		}
		if c.Storage.Azure.Container == "" {
			return errors.New("azure storage requires a container")
		}
	case DriverFilesystem:
		if c.Storage.Filesystem.Dir == "" {
			return errors.New("filesystem storage requires a directory")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Upload.Timeout <= 0 {
		return errors.New("upload timeout must be positive")
	}
	if c.Upload.MaxSize <= 0 {
		return errors.New("upload max size must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT to the CATALOG_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
