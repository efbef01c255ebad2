package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/izavyalov-dev/diffbase/ci"
	"github.com/izavyalov-dev/diffbase/internal/artifacts"
	"github.com/izavyalov-dev/diffbase/internal/config"
	"github.com/izavyalov-dev/diffbase/internal/gitcli"
	"github.com/izavyalov-dev/diffbase/internal/observability"
	"github.com/izavyalov-dev/diffbase/internal/vcs/github"
	"github.com/izavyalov-dev/diffbase/protocol"
	"github.com/izavyalov-dev/diffbase/resolver"
	"github.com/izavyalov-dev/diffbase/state"
)

func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(flags.configPath, os.LookupEnv)
	if err != nil {
		return config.Config{}, err
	}

	changed := cmd.Flags().Changed
	overrides := []struct {
		flag   string
		value  string
		target *string
	}{
		{"base", flags.base, &cfg.Base},
		{"manifest-path", flags.manifestPath, &cfg.ManifestPath},
		{"repo-dir", flags.repoDir, &cfg.RepoDir},
		{"database-url", flags.databaseURL, &cfg.DatabaseURL},
		{"metrics-textfile", flags.metricsTextfile, &cfg.MetricsTextfile},
		{"github-repository", flags.githubRepo, &cfg.GitHub.Repository},
		{"s3-bucket", flags.s3Bucket, &cfg.S3.Bucket},
		{"s3-prefix", flags.s3Prefix, &cfg.S3.Prefix},
		{"s3-region", flags.s3Region, &cfg.S3.Region},
	}
	for _, o := range overrides {
		if changed(o.flag) {
			*o.target = o.value
		}
	}
	if changed("skip-fetch") {
		cfg.SkipFetch = flags.skipFetch
	}
	if changed("offline") {
		cfg.Offline = flags.offline
	}
	return cfg, nil
}

// app wires the resolver and its optional sinks from configuration.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	service  *resolver.Service
	store    *state.Store
	sinks    resolver.Sinks
	closers  []func() error
}

// newApp wires the service. restrictFiles limits FILE_PATH bases to the
// configured manifest path, as required when serving over HTTP.
func newApp(ctx context.Context, cfg config.Config, environ []string, restrictFiles bool) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   observability.NewLogger("diffbase"),
		registry: prometheus.NewRegistry(),
	}

	ciContext, err := ci.Load(environ)
	if err != nil {
		return nil, fmt.Errorf("read ci context: %w", err)
	}

	git, err := gitcli.New(cfg.RepoDir, gitcli.WithLogger(observability.NewLogger("gitcli")))
	if err != nil {
		return nil, err
	}

	online := cfg.Online(ctx, config.DefaultProbeTimeout)
	a.logger.Debug("network probed", "event", "network_probed", "online", online, "addr", cfg.NetworkProbeAddr)

	var prs resolver.PullRequests
	if cfg.GitHub.Repository != "" {
		client, err := github.NewClient(cfg.GitHub.Token, cfg.GitHub.Repository)
		if err != nil {
			return nil, err
		}
		if cfg.GitHub.BaseURL != "" {
			client.BaseURL = cfg.GitHub.BaseURL
		}
		prs = client
	}

	var fs resolver.FileSystem = resolver.OSFileSystem{}
	if restrictFiles {
		manifestPath := cfg.ManifestPath
		if manifestPath == "" {
			manifestPath = resolver.DefaultManifestPath
		}
		fs = resolver.ManifestOnly(fs, manifestPath)
	}

	a.service = resolver.NewService(git, prs, fs, ciContext, resolver.Options{
		Base:         cfg.Base,
		ManifestPath: cfg.ManifestPath,
		SkipFetch:    cfg.SkipFetch,
		Online:       online,
		Logger:       observability.NewLogger("resolver"),
		Metrics:      observability.NewMetrics(a.registry),
	})

	if cfg.DatabaseURL != "" {
		store, err := openStore(ctx, cfg.DatabaseURL, a)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = store
		a.sinks = append(a.sinks, store)
	}

	if cfg.S3.Bucket != "" {
		publisher, err := artifacts.NewS3Publisher(ctx, artifacts.S3Config{
			Bucket: cfg.S3.Bucket,
			Prefix: cfg.S3.Prefix,
			Region: cfg.S3.Region,
		}, observability.NewLogger("artifacts"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sinks = append(a.sinks, publisher)
	}

	return a, nil
}

func openStore(ctx context.Context, databaseURL string, a *app) (*state.Store, error) {
	db, err := state.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	store := state.NewStore(db)
	if err := store.ApplyMigrations(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// record hands base to every configured sink. Sink failures never fail a
// resolution.
func (a *app) record(ctx context.Context, operation string, base protocol.DiffBase) {
	if len(a.sinks) == 0 {
		return
	}
	if err := a.sinks.Record(ctx, operation, base); err != nil {
		a.logger.Warn("record diff base failed", "event", "record_failed", "operation", operation, "error", err)
	}
}

func (a *app) writeMetrics() {
	if a.cfg.MetricsTextfile == "" {
		return
	}
	if err := observability.WriteTextfile(a.cfg.MetricsTextfile, a.registry); err != nil {
		a.logger.Warn("write metrics textfile failed", "event", "metrics_textfile_failed", "path", a.cfg.MetricsTextfile, "error", err)
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
