package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Defaults match the reference deployment values.
const (
	defaultHTTPAddr       = "0.0.0.0:3000"
	defaultBlobDir        = "./uploads"
	defaultMetaPath       = "./metadata.json"
	defaultTTL            = 24 * time.Hour
	defaultReaperInterval = 10 * time.Minute
	defaultMaxUploadBytes = 512 << 20 // 512 MiB
)

// Duration wraps time.Duration so yaml values like "24h" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("can't parse duration %q: %w", s, err)
	}

	*d = Duration(v)

	return nil
}

type Server struct {
	API     Api     `yaml:"api"`
	Storage Storage `yaml:"storage"`
	Reaper  Reaper  `yaml:"reaper"`
}

type Api struct {
	HTTPAddr string `yaml:"http_addr"`
	// BaseURL overrides the scheme+host used in share links; when empty,
	// links are built from the request.
	BaseURL        string `yaml:"base_url"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type Storage struct {
	BlobDir  string   `yaml:"blob_dir"`
	MetaPath string   `yaml:"meta_path"`
	TTL      Duration `yaml:"ttl"`
}

type Reaper struct {
	Interval Duration `yaml:"interval"`
}

// Parse reads the yaml config at path and fills unset fields with defaults.
// An empty path yields a config of pure defaults.
func Parse(path string) (Server, error) {
	var cfg Server

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Server{}, fmt.Errorf("can't read config file: %w", err)
		}

		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return Server{}, fmt.Errorf("can't unmarshal config: %w", err)
		}
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (c *Server) applyDefaults() {
	if c.API.HTTPAddr == "" {
		c.API.HTTPAddr = defaultHTTPAddr
	}
	if c.API.MaxUploadBytes == 0 {
		c.API.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Storage.BlobDir == "" {
		c.Storage.BlobDir = defaultBlobDir
	}
	if c.Storage.MetaPath == "" {
		c.Storage.MetaPath = defaultMetaPath
	}
	if c.Storage.TTL == 0 {
		c.Storage.TTL = Duration(defaultTTL)
	}
	if c.Reaper.Interval == 0 {
		c.Reaper.Interval = Duration(defaultReaperInterval)
	}
}

func (c Server) Validate() error {
	if c.API.HTTPAddr == "" {
		return fmt.Errorf("api.http_addr must be set")
	}
	if c.API.MaxUploadBytes <= 0 {
		return fmt.Errorf("api.max_upload_bytes must be positive")
	}
	if c.Storage.BlobDir == "" {
		return fmt.Errorf("storage.blob_dir must be set")
	}
	if c.Storage.MetaPath == "" {
		return fmt.Errorf("storage.meta_path must be set")
	}
	if c.Storage.TTL <= 0 {
		return fmt.Errorf("storage.ttl must be positive")
	}
	if c.Reaper.Interval <= 0 {
		return fmt.Errorf("reaper.interval must be positive")
	}

	return nil
}
