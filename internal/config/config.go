// Package config handles upkeep configuration loading and location resolution.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adamancini/upkeep/internal/codec"
	"github.com/adamancini/upkeep/internal/types"
)

// Defaults applied when a field is left unset.
const (
	DefaultKeepBackups     = 5
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultChannel         = "stable"
	DefaultRegoQuery       = "data.upkeep.decision"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"

	// BackupDirName is the backups subdirectory of the installation root.
	BackupDirName = "backups"
	// StagingDirName is the default staging subdirectory of the installation root.
	StagingDirName = ".staging"
	// MarkerFileName is the installed version marker at the installation root.
	MarkerFileName = "version.txt"
)

// ErrNotFound is returned by Find when no config file exists in any of the
// search locations.
var ErrNotFound = errors.New("no config file found")

// Duration is a time.Duration that decodes from strings like "90s" or "5m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for YAML, TOML and JSON.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the parsed upkeep configuration file.
type Config struct {
	InstallDir         string   `yaml:"install_dir" toml:"install_dir" json:"install_dir"`
	BinaryName         string   `yaml:"binary_name" toml:"binary_name" json:"binary_name"`
	KeepBackups        int      `yaml:"keep_backups" toml:"keep_backups" json:"keep_backups"`
	DownloadTimeout    Duration `yaml:"download_timeout" toml:"download_timeout" json:"download_timeout"`
	StagingDir         string   `yaml:"staging_dir,omitempty" toml:"staging_dir,omitempty" json:"staging_dir,omitempty"`
	VerifyAfterInstall bool     `yaml:"verify_after_install" toml:"verify_after_install" json:"verify_after_install"`

	Policy  PolicyConfig  `yaml:"policy" toml:"policy" json:"policy"`
	Signing SigningConfig `yaml:"signing" toml:"signing" json:"signing"`
	Storage StorageConfig `yaml:"storage" toml:"storage" json:"storage"`
	Feed    FeedConfig    `yaml:"feed" toml:"feed" json:"feed"`
	Log     LogConfig     `yaml:"log" toml:"log" json:"log"`
}

// PolicyConfig configures the update policy evaluator.
type PolicyConfig struct {
	Engine             types.PolicyEngine `yaml:"engine" toml:"engine" json:"engine"`
	AllowedChannels    []string           `yaml:"allowed_channels,omitempty" toml:"allowed_channels,omitempty" json:"allowed_channels,omitempty"`
	DeniedChannels     map[string]string  `yaml:"denied_channels,omitempty" toml:"denied_channels,omitempty" json:"denied_channels,omitempty"` // channel -> reason
	ApprovalChannels   []string           `yaml:"approval_channels,omitempty" toml:"approval_channels,omitempty" json:"approval_channels,omitempty"`
	MaxSizeMB          float64            `yaml:"max_size_mb,omitempty" toml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"`
	RequiredCompliance []string           `yaml:"required_compliance,omitempty" toml:"required_compliance,omitempty" json:"required_compliance,omitempty"`
	RequireSignature   bool               `yaml:"require_signature" toml:"require_signature" json:"require_signature"`
	RegoPath           string             `yaml:"rego_path,omitempty" toml:"rego_path,omitempty" json:"rego_path,omitempty"`
	RegoQuery          string             `yaml:"rego_query,omitempty" toml:"rego_query,omitempty" json:"rego_query,omitempty"`
}

// SigningConfig holds the public keys used to verify artifact signatures.
type SigningConfig struct {
	MinisignPublicKey     string `yaml:"minisign_public_key,omitempty" toml:"minisign_public_key,omitempty" json:"minisign_public_key,omitempty"`
	MinisignPublicKeyFile string `yaml:"minisign_public_key_file,omitempty" toml:"minisign_public_key_file,omitempty" json:"minisign_public_key_file,omitempty"`
	Ed25519PublicKey      string `yaml:"ed25519_public_key,omitempty" toml:"ed25519_public_key,omitempty" json:"ed25519_public_key,omitempty"` // hex
}

// StorageConfig configures the non-HTTP artifact transports.
type StorageConfig struct {
	S3    S3Config    `yaml:"s3" toml:"s3" json:"s3"`
	Azure AzureConfig `yaml:"azure" toml:"azure" json:"azure"`
}

// S3Config configures s3:// artifact URLs.
type S3Config struct {
	Region         string `yaml:"region,omitempty" toml:"region,omitempty" json:"region,omitempty"`
	Endpoint       string `yaml:"endpoint,omitempty" toml:"endpoint,omitempty" json:"endpoint,omitempty"`
	ForcePathStyle bool   `yaml:"force_path_style,omitempty" toml:"force_path_style,omitempty" json:"force_path_style,omitempty"`
}

// AzureConfig configures azblob:// artifact URLs.
type AzureConfig struct {
	ConnectionString string `yaml:"connection_string,omitempty" toml:"connection_string,omitempty" json:"connection_string,omitempty"`
}

// FeedConfig configures the HTTP release feed.
type FeedConfig struct {
	URL     string `yaml:"url,omitempty" toml:"url,omitempty" json:"url,omitempty"`
	Token   string `yaml:"token,omitempty" toml:"token,omitempty" json:"token,omitempty"`
	Channel string `yaml:"channel,omitempty" toml:"channel,omitempty" json:"channel,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" toml:"format,omitempty" json:"format,omitempty"`
}

// Default returns a configuration with every default applied. InstallDir and
// BinaryName are left empty; callers fill them from the running executable.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.KeepBackups == 0 {
		c.KeepBackups = DefaultKeepBackups
	}
	if c.DownloadTimeout == 0 {
		c.DownloadTimeout = Duration(DefaultDownloadTimeout)
	}
	c.Policy.Engine = c.Policy.Engine.Default()
	if c.Policy.RegoQuery == "" {
		c.Policy.RegoQuery = DefaultRegoQuery
	}
	if c.Feed.Channel == "" {
		c.Feed.Channel = DefaultChannel
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// BinaryPath returns the live binary path.
func (c *Config) BinaryPath() string {
	return filepath.Join(c.InstallDir, c.BinaryName)
}

// BackupDir returns the backups directory under the installation root.
func (c *Config) BackupDir() string {
	return filepath.Join(c.InstallDir, BackupDirName)
}

// StagingPath returns the staging directory for downloads.
func (c *Config) StagingPath() string {
	if c.StagingDir != "" {
		return c.StagingDir
	}
	return filepath.Join(c.InstallDir, StagingDirName)
}

// MarkerPath returns the version marker path.
func (c *Config) MarkerPath() string {
	return filepath.Join(c.InstallDir, MarkerFileName)
}

// configFileNames are tried in order in each search directory.
var configFileNames = []string{
	"config.yaml",
	"config.yml",
	"config.toml",
	"config.json",
}

// installDirFileNames are tried in the installation directory itself.
var installDirFileNames = []string{
	"upkeep.yaml",
	"upkeep.yml",
	"upkeep.toml",
	"upkeep.json",
}

// Find searches for a config file in the standard locations.
// Returns ErrNotFound if none exists.
func Find(explicitPath, installDir string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv("UPKEEP_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdgConfig = filepath.Join(home, ".config")
		}
	}
	if xdgConfig != "" {
		for _, name := range configFileNames {
			path := filepath.Join(xdgConfig, "upkeep", name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	if installDir != "" {
		for _, name := range installDirFileNames {
			path := filepath.Join(installDir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", ErrNotFound
}

// Load reads, parses and validates a config file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	format := codec.Detect(path, content)
	if format == codec.FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := Parse(content, format)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes content in the given format, expanding ${VAR} references
// and applying defaults. It does not validate.
func Parse(content []byte, format codec.Format) (*Config, error) {
	content = codec.ExpandEnv(content)

	cfg := &Config{}
	if err := codec.Decode(content, format, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}
