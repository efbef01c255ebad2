// Package config loads diffbase settings from the project file, the
// environment and a local .env file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFile             = ".diffbase.yml"
	DefaultBase             = "origin/master"
	DefaultManifestPath     = "screenshots/golden.json"
	DefaultNetworkProbeAddr = "api.github.com:443"
	DefaultProbeTimeout     = 2 * time.Second
)

type Config struct {
	Base             string `yaml:"base"`
	ManifestPath     string `yaml:"manifest_path"`
	SkipFetch        bool   `yaml:"skip_fetch"`
	Offline          bool   `yaml:"offline"`
	NetworkProbeAddr string `yaml:"network_probe_addr"`
	RepoDir          string `yaml:"repo_dir"`
	DatabaseURL      string `yaml:"database_url"`
	MetricsTextfile  string `yaml:"metrics_textfile"`

	GitHub GitHubConfig `yaml:"github"`
	S3     S3Config     `yaml:"s3"`
}

type GitHubConfig struct {
	// Repository is owner/name.
	Repository string `yaml:"repository"`
	Token      string `yaml:"token"`
	BaseURL    string `yaml:"base_url"`
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Base:             DefaultBase,
		ManifestPath:     DefaultManifestPath,
		NetworkProbeAddr: DefaultNetworkProbeAddr,
		RepoDir:          ".",
	}
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML project file at path and applies environment
// overrides from lookup. An empty path reads DefaultFile, which may be
// absent; an explicit path must exist.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := []struct {
		name   string
		target *string
	}{
		{"DIFFBASE_BASE", &cfg.Base},
		{"DIFFBASE_MANIFEST_PATH", &cfg.ManifestPath},
		{"DIFFBASE_NETWORK_PROBE_ADDR", &cfg.NetworkProbeAddr},
		{"DIFFBASE_REPO_DIR", &cfg.RepoDir},
		{"DIFFBASE_DATABASE_URL", &cfg.DatabaseURL},
		{"DIFFBASE_METRICS_TEXTFILE", &cfg.MetricsTextfile},
		{"DIFFBASE_GITHUB_REPOSITORY", &cfg.GitHub.Repository},
		{"DIFFBASE_GITHUB_TOKEN", &cfg.GitHub.Token},
		{"DIFFBASE_GITHUB_BASE_URL", &cfg.GitHub.BaseURL},
		{"DIFFBASE_S3_BUCKET", &cfg.S3.Bucket},
		{"DIFFBASE_S3_PREFIX", &cfg.S3.Prefix},
		{"DIFFBASE_S3_REGION", &cfg.S3.Region},
	}
	for _, s := range strs {
		if v, ok := lookup(s.name); ok && strings.TrimSpace(v) != "" {
			*s.target = strings.TrimSpace(v)
		}
	}

	bools := []struct {
		name   string
		target *bool
	}{
		{"DIFFBASE_SKIP_FETCH", &cfg.SkipFetch},
		{"DIFFBASE_OFFLINE", &cfg.Offline},
	}
	for _, b := range bools {
		v, ok := lookup(b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
		*b.target = parsed
	}

	fallbacks := []struct {
		name   string
		target *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"GITHUB_REPOSITORY", &cfg.GitHub.Repository},
		{"GITHUB_TOKEN", &cfg.GitHub.Token},
		{"AWS_REGION", &cfg.S3.Region},
	}
	for _, f := range fallbacks {
		if *f.target != "" {
			continue
		}
		if v, ok := lookup(f.name); ok {
			*f.target = strings.TrimSpace(v)
		}
	}
	return nil
}

// Online reports whether the network is reachable. Offline forces false;
// otherwise a TCP connection to the probe address must succeed within timeout.
func (c Config) Online(ctx context.Context, timeout time.Duration) bool {
	if c.Offline || c.NetworkProbeAddr == "" {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.NetworkProbeAddr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
