package filestag

import (
	"os"
	"testing"
	"time"
)

func TestGetConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    Config
	}{
		{
			name:    "default values",
			envVars: map[string]string{},
			want:    *DefaultConfig(),
		},
		{
			name: "listing and sink settings",
			envVars: map[string]string{
				"BEAVER_FILESTAG_PAGE_SIZE":           "500",
				"BEAVER_FILESTAG_TIMEOUT_SECONDS":     "5",
				"BEAVER_FILESTAG_CREATE_DIRS":         "false",
				"BEAVER_FILESTAG_ARCHIVE_COMPRESSION": "0",
			},
			want: Config{
				PageSize:           500,
				TimeoutSeconds:     5,
				CreateDirs:         false,
				ArchiveCompression: 0,
				WebMaxBytes:        200 << 20,
				S3Region:           "us-east-1",
				SFTPPort:           22,
			},
		},
		{
			name: "web cache",
			envVars: map[string]string{
				"BEAVER_FILESTAG_WEB_CACHE_TTL_SECONDS": "3600",
				"BEAVER_FILESTAG_WEB_CACHE_DIR":         "/tmp/filestag",
				"BEAVER_FILESTAG_WEB_MAX_BYTES":         "1024",
			},
			want: Config{
				PageSize:           100,
				TimeoutSeconds:     30,
				CreateDirs:         true,
				ArchiveCompression: 20,
				WebCacheTTLSeconds: 3600,
				WebCacheDir:        "/tmp/filestag",
				WebMaxBytes:        1024,
				S3Region:           "us-east-1",
				SFTPPort:           22,
			},
		},
		{
			name: "s3 configuration",
			envVars: map[string]string{
				"BEAVER_FILESTAG_S3_REGION":            "us-west-2",
				"BEAVER_FILESTAG_S3_ACCESS_KEY_ID":     "test-key",
				"BEAVER_FILESTAG_S3_SECRET_ACCESS_KEY": "test-secret",
				"BEAVER_FILESTAG_S3_ENDPOINT":          "http://localhost:9000",
				"BEAVER_FILESTAG_S3_FORCE_PATH_STYLE":  "true",
			},
			want: Config{
				PageSize:           100,
				TimeoutSeconds:     30,
				CreateDirs:         true,
				ArchiveCompression: 20,
				WebMaxBytes:        200 << 20,
				S3Region:           "us-west-2",
				S3AccessKeyID:      "test-key",
				S3SecretAccessKey:  "test-secret",
				S3Endpoint:         "http://localhost:9000",
				S3ForcePathStyle:   true,
				SFTPPort:           22,
			},
		},
		{
			name: "gcs and sftp configuration",
			envVars: map[string]string{
				"BEAVER_FILESTAG_GCS_PROJECT_ID":       "project",
				"BEAVER_FILESTAG_GCS_CREDENTIALS_FILE": "/etc/gcs.json",
				"BEAVER_FILESTAG_SFTP_PORT":            "2222",
				"BEAVER_FILESTAG_SFTP_PASSWORD":        "secret",
				"BEAVER_FILESTAG_SFTP_PRIVATE_KEY":     "/home/user/.ssh/id_ed25519",
			},
			want: Config{
				PageSize:           100,
				TimeoutSeconds:     30,
				CreateDirs:         true,
				ArchiveCompression: 20,
				WebMaxBytes:        200 << 20,
				S3Region:           "us-east-1",
				GCSProjectID:       "project",
				GCSCredentialsFile: "/etc/gcs.json",
				SFTPPort:           2222,
				SFTPPassword:       "secret",
				SFTPPrivateKey:     "/home/user/.ssh/id_ed25519",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Set environment variables
			for k, v := range tt.envVars {
				k := k // capture for closure
				os.Setenv(k, v)
				t.Cleanup(func() { os.Unsetenv(k) })
			}

			cfg, err := GetConfig()
			if err != nil {
				t.Fatalf("GetConfig() error = %v", err)
			}

			if *cfg != tt.want {
				t.Errorf("GetConfig() = %+v, want %+v", *cfg, tt.want)
			}
		})
	}
}

func TestConfigDurations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout() = %v, want 30s", cfg.Timeout())
	}
	if cfg.WebCacheTTL() != 0 {
		t.Errorf("WebCacheTTL() = %v, want 0", cfg.WebCacheTTL())
	}

	cfg.TimeoutSeconds = 0
	cfg.WebCacheTTLSeconds = 60
	if cfg.Timeout() != 0 {
		t.Errorf("Timeout() = %v, want disabled", cfg.Timeout())
	}
	if cfg.WebCacheTTL() != time.Minute {
		t.Errorf("WebCacheTTL() = %v, want 1m", cfg.WebCacheTTL())
	}

	var nilCfg *Config
	if nilCfg.Timeout() != 0 || nilCfg.WebCacheTTL() != 0 {
		t.Error("nil config must report disabled durations")
	}
}
