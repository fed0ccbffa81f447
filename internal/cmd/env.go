package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/adamancini/upkeep/internal/config"
	"github.com/adamancini/upkeep/internal/logging"
	"github.com/adamancini/upkeep/internal/output"
	"github.com/adamancini/upkeep/internal/policy"
	"github.com/adamancini/upkeep/internal/storage/azblob"
	"github.com/adamancini/upkeep/internal/storage/s3"
	"github.com/adamancini/upkeep/internal/update"
	"github.com/adamancini/upkeep/internal/verify"
)

// env is everything a command needs to act on one installation.
type env struct {
	cfg     *config.Config
	cfgPath string // empty when running on defaults
	logger  *log.Logger
	out     *output.Writer
	stdout  io.Writer
	updater *update.Updater
}

// loadEnv resolves the config, logger and updater from the global flags.
func loadEnv(cmd *cobra.Command, opts ...update.Option) (*env, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	cfg, cfgPath, err := resolveConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, err
	}
	if cfgPath != "" {
		logger.Debug("Loaded config", "path", cfgPath)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	evaluator, err := policy.New(ctx, cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	validator, err := verify.NewValidator(verify.Keys{
		Minisign:     cfg.Signing.MinisignPublicKey,
		MinisignFile: cfg.Signing.MinisignPublicKeyFile,
		Ed25519:      cfg.Signing.Ed25519PublicKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	all := append(storageTransports(cfg.Storage), update.WithLogger(logger))
	u, err := update.New(cfg, evaluator, validator, append(all, opts...)...)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
		out:     output.NewWriter(cmd.OutOrStdout(), format),
		stdout:  cmd.OutOrStdout(),
		updater: u,
	}, nil
}

// resolveConfig finds and loads the config file. Without one, upkeep
// manages its own executable with default settings.
func resolveConfig() (*config.Config, string, error) {
	exe, exeErr := executablePath()

	dir := installDir
	if dir == "" && exeErr == nil {
		dir = filepath.Dir(exe)
	}

	var cfg *config.Config
	path, err := config.Find(configPath, dir)
	switch {
	case errors.Is(err, config.ErrNotFound):
		cfg = config.Default()
		path = ""
	case err != nil:
		return nil, "", err
	default:
		cfg, err = config.Load(path)
		if err != nil {
			return nil, "", err
		}
	}

	if installDir != "" {
		cfg.InstallDir = installDir
	}
	if cfg.InstallDir == "" {
		cfg.InstallDir = dir
	}
	if cfg.BinaryName == "" && exeErr == nil {
		cfg.BinaryName = filepath.Base(exe)
	}
	if cfg.InstallDir == "" || cfg.BinaryName == "" {
		if exeErr != nil {
			return nil, "", fmt.Errorf("cannot determine the installation (set install_dir and binary_name): %w", exeErr)
		}
		return nil, "", errors.New("cannot determine the installation (set install_dir and binary_name)")
	}

	abs, err := filepath.Abs(cfg.InstallDir)
	if err != nil {
		return nil, "", fmt.Errorf("invalid install_dir: %w", err)
	}
	cfg.InstallDir = abs
	return cfg, path, nil
}

func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

// newLogger applies --verbose and --quiet on top of the configured level.
func newLogger(w io.Writer, lc config.LogConfig) (*log.Logger, error) {
	level := lc.Level
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	return logging.New(w, logging.Options{Level: level, Format: lc.Format})
}

// storageTransports registers the object storage schemes. Clients are built
// on first use so commands that never download do not need credentials.
func storageTransports(sc config.StorageConfig) []update.Option {
	opts := []update.Option{
		update.WithTransport(s3.Scheme, lazyTransport(func(ctx context.Context) (update.Transport, error) {
			return s3.New(ctx, s3.Options{
				Region:         sc.S3.Region,
				Endpoint:       sc.S3.Endpoint,
				ForcePathStyle: sc.S3.ForcePathStyle,
			})
		})),
	}
	if sc.Azure.ConnectionString != "" {
		opts = append(opts, update.WithTransport(azblob.Scheme, lazyTransport(func(context.Context) (update.Transport, error) {
			return azblob.New(sc.Azure.ConnectionString)
		})))
	}
	return opts
}

// lazyTransport builds the wrapped transport once, on the first Open.
func lazyTransport(build func(ctx context.Context) (update.Transport, error)) update.Transport {
	var (
		once sync.Once
		t    update.Transport
		err  error
	)
	return update.TransportFunc(func(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
		once.Do(func() { t, err = build(ctx) })
		if err != nil {
			return nil, err
		}
		return t.Open(ctx, u)
	})
}
