package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/paulheiniger/storm-event-leads/internal/adapter/export"
	httpadapter "github.com/paulheiniger/storm-event-leads/internal/adapter/http"
	kafkaadapter "github.com/paulheiniger/storm-event-leads/internal/adapter/kafka"
	"github.com/paulheiniger/storm-event-leads/internal/adapter/mapbox"
	"github.com/paulheiniger/storm-event-leads/internal/adapter/swdi"
	"github.com/paulheiniger/storm-event-leads/internal/config"
	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/observability"
	"github.com/paulheiniger/storm-event-leads/internal/pipeline"
)

type runFlags struct {
	regions   []string
	start     string
	end       string
	dataset   string
	writeMode string
	opts      pipeline.Options
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	f := runFlags{opts: pipeline.DefaultOptions()}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire, cluster and export storm leads for regions over a window",
		Example: `  stormleads run --regions GA,IN --start 2024-01-01 --end 2024-03-01
  stormleads run --regions KY --start 2024-05-01 --end 2024-05-03 --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, f)
		},
	}

	fs := cmd.Flags()
	fs.StringSliceVar(&f.regions, "regions", nil, "comma separated region codes (required)")
	fs.StringVar(&f.start, "start", "", "window start date, inclusive (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "window end date, exclusive (YYYY-MM-DD)")
	fs.StringVar(&f.dataset, "dataset", DefaultDataset, "SWDI dataset to acquire")
	fs.IntVar(&f.opts.ChunkDays, "chunk-days", f.opts.ChunkDays, "days per acquisition sub-chunk")
	fs.Float64Var(&f.opts.Primary.Eps, "hail-eps", f.opts.Primary.Eps, "primary clustering radius in degrees")
	fs.IntVar(&f.opts.Primary.MinSamples, "hail-min-samples", f.opts.Primary.MinSamples, "primary clustering core size, including the point itself")
	fs.Float64Var(&f.opts.BufferRadius, "addr-buffer", f.opts.BufferRadius, "address search radius around each storm centroid, in degrees")
	fs.Float64Var(&f.opts.Secondary.Eps, "addr-eps", f.opts.Secondary.Eps, "address clustering radius in degrees")
	fs.IntVar(&f.opts.Secondary.MinSamples, "addr-min-samples", f.opts.Secondary.MinSamples, "address clustering core size, including the point itself")
	fs.StringVar(&f.writeMode, "write-mode", string(f.opts.WriteMode), "output replacement: replace-staging, replace-drop or append")
	fs.IntVar(&f.opts.Parallelism, "parallel", f.opts.Parallelism, "partitions processed concurrently")
	fs.BoolVar(&f.opts.Force, "force", false, "recompute every step even when outputs exist")
	_ = cmd.MarkFlagRequired("regions")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func runPipeline(cmd *cobra.Command, f runFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	window, err := parseWindow(f.start, f.end)
	if err != nil {
		return err
	}
	parts, err := buildPartitions(cfg.Catalog, f.regions, f.dataset, window)
	if err != nil {
		return err
	}
	mode, err := domain.ParseWriteMode(f.writeMode)
	if err != nil {
		return err
	}

	opts := f.opts
	opts.WriteMode = mode
	opts.Retry = pipeline.RetryPolicy{
		MaxAttempts:    cfg.FetchMaxAttempts,
		InitialBackoff: cfg.FetchInitialBackoff,
		MaxBackoff:     cfg.FetchMaxBackoff,
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		opts.Geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	}
	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		opts.Publisher = publisher
		logger.Info("cluster publication enabled", "topic", cfg.KafkaClusterTopic, "brokers", cfg.KafkaBrokers)
	}

	out := cmd.OutOrStdout()
	opts.OnEntry = newProgress(out).entry

	orch, err := pipeline.New(
		store,
		store,
		swdi.NewClient(cfg.SWDIBaseURL, cfg.SWDITimeout, logger),
		export.NewExporter(cfg.ExportDir, cfg.ExportCompress, logger),
		logger,
		metrics,
		opts,
	)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, orch, store, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer shutdownServer(srv, cfg, logger)
	}

	_, _ = color.New(color.Bold).Fprintf(out, "Run %s: %d partition(s), window %s\n", orch.RunID(), len(parts), window)

	reports, err := orch.RunAll(ctx, parts)
	summaryErr := printSummary(out, reports)
	if err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	return summaryErr
}

func shutdownServer(srv *httpadapter.Server, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}
