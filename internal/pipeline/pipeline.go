package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/paulheiniger/storm-event-leads/internal/cluster"
	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/observability"
)

// Store is the spatial store gateway the steps read from and write to.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	WriteObservations(ctx context.Context, name string, points []domain.PointObservation, mode domain.WriteMode) error
	CreateUnionView(ctx context.Context, name string, sources []string) error
	LoadObservations(ctx context.Context, source string) ([]domain.PointObservation, error)
	WritePrimaryClusters(ctx context.Context, name string, clusters []domain.PrimaryCluster, mode domain.WriteMode) error
	LoadPrimaryClusters(ctx context.Context, name string) ([]domain.PrimaryCluster, error)
	CreateAlias(ctx context.Context, alias, target string) error
	ResolveAlias(ctx context.Context, alias string) (string, error)
	QueryEntities(ctx context.Context, region orb.Polygon) ([]domain.SecondaryEntity, error)
	WriteSecondaryClusters(ctx context.Context, name string, clusters []domain.SecondaryCluster, mode domain.WriteMode) error
	LoadSecondaryClusters(ctx context.Context, name string) ([]domain.SecondaryCluster, error)
}

// RunLog persists append-only step outcomes.
type RunLog interface {
	Append(ctx context.Context, entry domain.RunLogEntry) error
	History(ctx context.Context, partition string, limit int) ([]domain.RunLogEntry, error)
}

// Fetcher acquires observations for one region and sub-window from upstream.
// Errors should be classified with domain.Transient or domain.Permanent.
type Fetcher interface {
	Fetch(ctx context.Context, region domain.Region, dataset string, window domain.TimeWindow) ([]domain.PointObservation, error)
}

// Exporter renders cluster collections into an artifact.
type Exporter interface {
	Exists(name string) (bool, error)
	Render(ctx context.Context, name string, primary []domain.PrimaryCluster, secondary []domain.SecondaryCluster) (string, error)
}

// Publisher announces finished clusters downstream.
type Publisher interface {
	PublishClusters(ctx context.Context, partition string, primary []domain.PrimaryCluster, secondary []domain.SecondaryCluster) error
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrAbandoned marks a partition for which no sub-chunk could be acquired.
var ErrAbandoned = errors.New("partition abandoned: no sub-chunk was acquired")

// Options tunes a pipeline run.
type Options struct {
	ChunkDays    int
	Primary      cluster.Params
	Secondary    cluster.Params
	BufferRadius float64
	WriteMode    domain.WriteMode
	Force        bool
	Parallelism  int
	Retry        RetryPolicy
	RunID        string
	OnEntry      func(domain.RunLogEntry) // called after every run log append
	Geocoder     domain.Geocoder          // optional; names primary clusters at export
	Publisher    Publisher                // optional
	Clock        clockwork.Clock          // defaults to the real clock
}

// DefaultOptions mirrors the historical tuning of the hail pipeline.
func DefaultOptions() Options {
	return Options{
		ChunkDays:    45,
		Primary:      cluster.Params{Eps: 0.1, MinSamples: 5},
		Secondary:    cluster.Params{Eps: 0.001, MinSamples: 10},
		BufferRadius: 0.02,
		WriteMode:    domain.WriteReplaceStaging,
		Parallelism:  1,
		Retry:        DefaultRetryPolicy(),
	}
}

// Validate checks options before any partition runs.
func (o Options) Validate() error {
	if o.ChunkDays < 1 {
		return fmt.Errorf("chunk days must be at least 1, got %d", o.ChunkDays)
	}
	if err := o.Primary.Validate(); err != nil {
		return fmt.Errorf("primary clustering: %w", err)
	}
	if err := o.Secondary.Validate(); err != nil {
		return fmt.Errorf("secondary clustering: %w", err)
	}
	if !(o.BufferRadius > 0) {
		return fmt.Errorf("buffer radius must be positive, got %v", o.BufferRadius)
	}
	if _, err := domain.ParseWriteMode(string(o.WriteMode)); err != nil {
		return err
	}
	if o.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", o.Retry.MaxAttempts)
	}
	return nil
}

// Orchestrator sequences the pipeline steps for each partition.
type Orchestrator struct {
	store    Store
	runLog   RunLog
	fetcher  Fetcher
	exporter Exporter
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	opts     Options
	runID    string
}

// New creates an Orchestrator. It fails if opts are invalid or exporter is nil.
func New(store Store, runLog RunLog, fetcher Fetcher, exporter Exporter, logger *slog.Logger, metrics *observability.Metrics, opts Options) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if exporter == nil {
		return nil, errors.New("exporter is required")
	}
	if opts.WriteMode == "" {
		opts.WriteMode = domain.WriteReplaceStaging
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	runID := opts.RunID
	if runID == "" {
		runID = ulid.Make().String()
	}
	return &Orchestrator{
		store:    store,
		runLog:   runLog,
		fetcher:  fetcher,
		exporter: exporter,
		logger:   logger.With("run_id", runID),
		metrics:  metrics,
		clock:    clock,
		opts:     opts,
		runID:    runID,
	}, nil
}

// RunID identifies this orchestrator's entries in the run log.
func (o *Orchestrator) RunID() string { return o.runID }

// CheckReadiness pings the store when it supports it.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if p, ok := o.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Outcome summarizes how a partition ended.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// StepResult is the outcome of one step or sub-chunk.
type StepResult struct {
	Step   domain.StepName
	Status domain.StepStatus
	Note   string
}

// PartitionReport is the result of running one partition.
type PartitionReport struct {
	Partition string
	State     State
	Outcome   Outcome
	Steps     []StepResult
	Artifact  string
	Err       error
}

// Count returns how many results of step ended with status.
func (r PartitionReport) Count(step domain.StepName, status domain.StepStatus) int {
	n := 0
	for _, s := range r.Steps {
		if s.Step == step && s.Status == status {
			n++
		}
	}
	return n
}

// Skipped counts the steps that reused an existing output. Sub-chunks are
// not counted.
func (r PartitionReport) Skipped() int {
	n := 0
	for _, s := range r.Steps {
		if s.Step != domain.StepAcquire && s.Status == domain.StatusSkipped {
			n++
		}
	}
	return n
}

// RunAll processes partitions concurrently, at most Parallelism at a time.
// A failing partition does not stop the others. The returned error is only
// the context error, if any.
func (o *Orchestrator) RunAll(ctx context.Context, partitions []domain.Partition) ([]PartitionReport, error) {
	reports := make([]PartitionReport, len(partitions))

	var g errgroup.Group
	g.SetLimit(o.opts.Parallelism)
	for i, part := range partitions {
		g.Go(func() error {
			reports[i] = o.RunPartition(ctx, part)
			return nil
		})
	}
	_ = g.Wait()

	return reports, ctx.Err()
}

// RunPartition drives one partition from pending to a terminal state.
func (o *Orchestrator) RunPartition(ctx context.Context, part domain.Partition) PartitionReport {
	o.metrics.PartitionsInFlight.Inc()
	defer o.metrics.PartitionsInFlight.Dec()

	r := &partitionRun{
		o:      o,
		part:   part,
		key:    part.Key(),
		state:  StatePending,
		logger: o.logger.With("partition", part.Key()),
		report: PartitionReport{Partition: part.Key()},
	}
	r.record(domain.StepPartition, domain.StatusPending,
		fmt.Sprintf("region=%s window=%s dataset=%s force=%t", part.Region.Code, part.Window, part.Dataset, o.opts.Force))

	err := r.run(ctx)

	r.report.State = r.state
	r.report.Err = err
	switch {
	case r.state == StateDone:
		r.report.Outcome = OutcomeDone
		r.record(domain.StepPartition, domain.StatusOK, "done")
	case r.state == StateAbandoned:
		r.report.Outcome = OutcomeAbandoned
		r.record(domain.StepPartition, domain.StatusFail, ErrAbandoned.Error())
	default:
		r.report.Outcome = OutcomeFailed
		r.record(domain.StepPartition, domain.StatusFail, fmt.Sprintf("failed in %s: %v", r.failedIn, err))
	}
	o.metrics.PartitionOutcomes.WithLabelValues(string(r.report.Outcome)).Inc()
	r.logger.Info("partition finished", "outcome", r.report.Outcome, "state", r.state)
	return r.report
}
