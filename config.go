package filestag

import (
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Listing and request defaults for paginated backends
	PageSize       int `env:"FILESTAG_PAGE_SIZE,default:100"`
	TimeoutSeconds int `env:"FILESTAG_TIMEOUT_SECONDS,default:30"`

	// Sink defaults
	CreateDirs         bool `env:"FILESTAG_CREATE_DIRS,default:true"`
	ArchiveCompression int  `env:"FILESTAG_ARCHIVE_COMPRESSION,default:20"` // 0..100, 0 stores

	// Web fetch cache
	WebCacheTTLSeconds int    `env:"FILESTAG_WEB_CACHE_TTL_SECONDS,default:0"`
	WebCacheDir        string `env:"FILESTAG_WEB_CACHE_DIR"`
	WebMaxBytes        int64  `env:"FILESTAG_WEB_MAX_BYTES,default:209715200"` // 200MB default

	// S3 configuration
	S3Region          string `env:"FILESTAG_S3_REGION,default:us-east-1"`
	S3Endpoint        string `env:"FILESTAG_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"FILESTAG_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"FILESTAG_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"FILESTAG_S3_FORCE_PATH_STYLE,default:false"`

	// GCS (Google Cloud Storage) configuration
	GCSCredentialsFile string `env:"FILESTAG_GCS_CREDENTIALS_FILE"` // Path to service account JSON
	GCSProjectID       string `env:"FILESTAG_GCS_PROJECT_ID"`

	// SFTP configuration
	SFTPPort       int    `env:"FILESTAG_SFTP_PORT,default:22"`
	SFTPPassword   string `env:"FILESTAG_SFTP_PASSWORD"`
	SFTPPrivateKey string `env:"FILESTAG_SFTP_PRIVATE_KEY"` // Path to private key file
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfigWithPrefix loads the config using a custom environment prefix.
func GetConfigWithPrefix(prefix string) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: prefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults without reading the environment.
func DefaultConfig() *Config {
	return &Config{
		PageSize:           100,
		TimeoutSeconds:     30,
		CreateDirs:         true,
		ArchiveCompression: 20,
		WebMaxBytes:        200 << 20,
		S3Region:           "us-east-1",
		SFTPPort:           22,
	}
}

// Timeout returns the per-request timeout, zero when disabled.
func (c *Config) Timeout() time.Duration {
	if c == nil || c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebCacheTTL returns the maximum age of cached web downloads.
func (c *Config) WebCacheTTL() time.Duration {
	if c == nil || c.WebCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.WebCacheTTLSeconds) * time.Second
}
