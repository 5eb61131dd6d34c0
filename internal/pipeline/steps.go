package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/paulmach/orb"

	"github.com/paulheiniger/storm-event-leads/internal/cluster"
	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

// partitionRun carries the mutable state of one partition through the steps.
type partitionRun struct {
	o      *Orchestrator
	part   domain.Partition
	key    string
	state  State
	logger *slog.Logger
	report PartitionReport

	// dirty is set once any step of this run wrote an output; every later
	// step then recomputes instead of trusting an existing output.
	dirty    bool
	stale    map[domain.StepName]bool
	failedIn State
	chunks   []string
}

// stepFunc executes one step. It returns the status to record (OK or
// SKIPPED) and a note; a non-nil error is recorded as FAIL.
type stepFunc func(ctx context.Context) (domain.StepStatus, string, error)

func (r *partitionRun) run(ctx context.Context) error {
	steps := map[State]stepFunc{
		StateAcquiring:           r.acquire,
		StateCombining:           r.combine,
		StatePrimaryClustering:   r.primaryCluster,
		StateAliasing:            r.alias,
		StateSecondaryClustering: r.secondaryCluster,
		StateExporting:           r.export,
	}

	if !r.o.opts.Force {
		history, err := r.o.runLog.History(ctx, r.key, 0)
		if err != nil {
			return r.fail(fmt.Errorf("read run log: %w", err))
		}
		r.stale = staleSteps(history)
	}

	for _, next := range stepStates {
		if err := r.advance(next); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return r.fail(fmt.Errorf("%s: %w", next, err))
		}

		if err := r.execute(ctx, steps[next]); err != nil {
			if errors.Is(err, ErrAbandoned) {
				if terr := r.advance(StateAbandoned); terr != nil {
					return terr
				}
				return err
			}
			return r.fail(err)
		}
	}
	return r.advance(StateDone)
}

func (r *partitionRun) advance(to State) error {
	if err := Transition(r.state, to); err != nil {
		return err
	}
	r.logger.Debug("state transition", "from", r.state, "to", to)
	r.state = to
	return nil
}

func (r *partitionRun) fail(err error) error {
	r.failedIn = r.state
	if terr := r.advance(StateFailed); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}

// execute runs fn for the current state, timing it and recording the outcome.
func (r *partitionRun) execute(ctx context.Context, fn stepFunc) error {
	step, _ := StepFor(r.state)
	start := r.o.clock.Now()

	status, note, err := fn(ctx)

	r.o.metrics.StepDuration.WithLabelValues(string(step)).Observe(r.o.clock.Since(start).Seconds())
	if step == domain.StepAcquire {
		// sub-chunks are recorded individually
		if err != nil {
			r.o.metrics.StepOutcomes.WithLabelValues(string(step), string(domain.StatusFail)).Inc()
		}
		return err
	}
	if err != nil {
		r.record(step, domain.StatusFail, err.Error())
		return err
	}
	r.record(step, status, note)
	return nil
}

// record appends a run log entry and mirrors it into the report and metrics.
func (r *partitionRun) record(step domain.StepName, status domain.StepStatus, note string) {
	entry := domain.NewRunLogEntry(r.o.runID, r.key, step, status, note)

	if step != domain.StepPartition {
		r.report.Steps = append(r.report.Steps, StepResult{Step: step, Status: status, Note: entry.Note})
		r.o.metrics.StepOutcomes.WithLabelValues(string(step), string(status)).Inc()
	}

	level := slog.LevelInfo
	if status == domain.StatusFail {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "step", "step", step, "status", status, "note", entry.Note)

	// Run log failures must not change the outcome of the step.
	if err := r.o.runLog.Append(context.Background(), entry); err != nil {
		r.logger.Error("append run log", "step", step, "error", err)
	}
	if r.o.opts.OnEntry != nil {
		r.o.opts.OnEntry(entry)
	}
}

// recompute reports whether step must run even if its output exists.
func (r *partitionRun) recompute(step domain.StepName) bool {
	return r.o.opts.Force || r.dirty || r.stale[step]
}

// upToDate reports whether name can be reused without recomputing.
func (r *partitionRun) upToDate(ctx context.Context, step domain.StepName, name string) (bool, error) {
	if r.recompute(step) {
		return false, nil
	}
	ok, err := r.o.store.Exists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	return ok, nil
}

// confirm checks that a write produced its output.
func (r *partitionRun) confirm(ctx context.Context, name string) error {
	ok, err := r.o.store.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("expected %s after write", name)
	}
	return nil
}

// acquire fetches every sub-window into its own chunk. Individual chunk
// failures are recorded and tolerated.
func (r *partitionRun) acquire(ctx context.Context) (domain.StepStatus, string, error) {
	windows, err := domain.SplitWindow(r.part.Window, r.o.opts.ChunkDays)
	if err != nil {
		r.record(domain.StepAcquire, domain.StatusFail, err.Error())
		return "", "", domain.Permanent(err)
	}

	// chunks do not support append; their content is the whole sub-window
	mode := r.o.opts.WriteMode
	if mode == domain.WriteAppend {
		mode = domain.WriteReplaceStaging
	}

	var failed int
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			r.record(domain.StepAcquire, domain.StatusFail, err.Error())
			return "", "", err
		}
		name := r.part.ChunkName(w)
		status, note, err := r.acquireChunk(ctx, w, name, mode)
		if err != nil {
			failed++
			status, note = domain.StatusFail, fmt.Sprintf("%s: %v", name, err)
		} else {
			r.chunks = append(r.chunks, name)
		}
		r.o.metrics.SubChunks.WithLabelValues(string(status)).Inc()
		r.record(domain.StepAcquire, status, note)
	}

	if failed > 0 {
		r.logger.Warn("partial acquisition", "failed", failed, "acquired", len(r.chunks), "total", len(windows))
	}
	return domain.StatusOK, "", nil
}

func (r *partitionRun) acquireChunk(ctx context.Context, w domain.TimeWindow, name string, mode domain.WriteMode) (domain.StepStatus, string, error) {
	if !r.o.opts.Force {
		ok, err := r.o.store.Exists(ctx, name)
		if err != nil {
			return "", "", fmt.Errorf("check %s: %w", name, err)
		}
		if ok {
			return domain.StatusSkipped, name + " exists", nil
		}
	}

	points, err := r.fetchWithRetry(ctx, w)
	if err != nil {
		return "", "", err
	}
	if err := r.o.store.WriteObservations(ctx, name, points, mode); err != nil {
		return "", "", err
	}
	r.dirty = true
	if err := r.confirm(ctx, name); err != nil {
		return "", "", err
	}
	return domain.StatusOK, fmt.Sprintf("%s: %d points", name, len(points)), nil
}

// fetchWithRetry retries transient failures with exponential backoff.
func (r *partitionRun) fetchWithRetry(ctx context.Context, w domain.TimeWindow) ([]domain.PointObservation, error) {
	policy := r.o.opts.Retry
	backoff := policy.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		points, err := r.o.fetcher.Fetch(ctx, r.part.Region, r.part.Dataset, w)
		if err == nil {
			return points, nil
		}
		lastErr = err
		if !domain.IsTransient(err) || attempt == policy.MaxAttempts {
			break
		}

		r.o.metrics.FetchRetries.Inc()
		r.logger.Warn("transient fetch failure, retrying",
			"window", w.String(),
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !sleepWithContext(ctx, r.o.clock, backoff) {
			return nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, policy.MaxBackoff)
	}
	return nil, lastErr
}

func (r *partitionRun) combine(ctx context.Context) (domain.StepStatus, string, error) {
	if len(r.chunks) == 0 {
		return "", "", ErrAbandoned
	}

	name := r.part.CombinedName()
	ok, err := r.upToDate(ctx, domain.StepCombine, name)
	if err != nil {
		return "", "", err
	}
	if ok {
		return domain.StatusSkipped, name + " exists", nil
	}

	if err := r.o.store.CreateUnionView(ctx, name, r.chunks); err != nil {
		return "", "", fmt.Errorf("create view %s: %w", name, err)
	}
	r.dirty = true
	if err := r.confirm(ctx, name); err != nil {
		return "", "", err
	}
	return domain.StatusOK, fmt.Sprintf("%s over %d chunks", name, len(r.chunks)), nil
}

func (r *partitionRun) primaryCluster(ctx context.Context) (domain.StepStatus, string, error) {
	name := r.part.PrimaryName()
	ok, err := r.upToDate(ctx, domain.StepPrimaryCluster, name)
	if err != nil {
		return "", "", err
	}
	if ok {
		return domain.StatusSkipped, name + " exists", nil
	}

	points, err := r.o.store.LoadObservations(ctx, r.part.CombinedName())
	if err != nil {
		return "", "", fmt.Errorf("load observations: %w", err)
	}
	r.o.metrics.ObservationsLoaded.Add(float64(len(points)))

	clusters, err := cluster.ClusterPoints(points, r.o.opts.Primary, r.key)
	if err != nil && !errors.Is(err, cluster.ErrNoInput) {
		return "", "", domain.Permanent(err)
	}
	if len(points) == 0 {
		r.logger.Info("no observations to cluster", "source", r.part.CombinedName())
	}

	noise := cluster.NoiseCount(len(points), clusters)
	if err := r.o.store.WritePrimaryClusters(ctx, name, clusters, r.o.opts.WriteMode); err != nil {
		return "", "", fmt.Errorf("write %s: %w", name, err)
	}
	r.dirty = true
	if err := r.confirm(ctx, name); err != nil {
		return "", "", err
	}

	r.o.metrics.ClustersProduced.WithLabelValues("primary").Add(float64(len(clusters)))
	r.o.metrics.NoisePoints.WithLabelValues("primary").Add(float64(noise))
	return domain.StatusOK, fmt.Sprintf("%s: %d clusters from %d points, %d noise", name, len(clusters), len(points), noise), nil
}

func (r *partitionRun) alias(ctx context.Context) (domain.StepStatus, string, error) {
	alias, target := r.part.AliasName(), r.part.PrimaryName()

	if !r.recompute(domain.StepAlias) {
		current, err := r.o.store.ResolveAlias(ctx, alias)
		if err != nil {
			return "", "", fmt.Errorf("resolve %s: %w", alias, err)
		}
		if current == target {
			return domain.StatusSkipped, alias + " -> " + target, nil
		}
	}

	if err := r.o.store.CreateAlias(ctx, alias, target); err != nil {
		return "", "", fmt.Errorf("alias %s: %w", alias, err)
	}
	r.dirty = true
	return domain.StatusOK, alias + " -> " + target, nil
}

func (r *partitionRun) secondaryCluster(ctx context.Context) (domain.StepStatus, string, error) {
	name := r.part.SecondaryName()
	ok, err := r.upToDate(ctx, domain.StepSecondaryCluster, name)
	if err != nil {
		return "", "", err
	}
	if ok {
		return domain.StatusSkipped, name + " exists", nil
	}

	// read the dated output; the alias may already point at a newer run
	primaries, err := r.o.store.LoadPrimaryClusters(ctx, r.part.PrimaryName())
	if err != nil {
		return "", "", fmt.Errorf("load primary clusters: %w", err)
	}

	fetch := func(ctx context.Context, region orb.Polygon) ([]domain.SecondaryEntity, error) {
		return r.o.store.QueryEntities(ctx, region)
	}
	clusters, err := cluster.ClusterAllNearby(ctx, primaries, fetch, r.o.opts.BufferRadius, r.o.opts.Secondary)
	if err != nil {
		return "", "", err
	}

	if err := r.o.store.WriteSecondaryClusters(ctx, name, clusters, r.o.opts.WriteMode); err != nil {
		return "", "", fmt.Errorf("write %s: %w", name, err)
	}
	r.dirty = true
	if err := r.confirm(ctx, name); err != nil {
		return "", "", err
	}

	r.o.metrics.ClustersProduced.WithLabelValues("secondary").Add(float64(len(clusters)))
	return domain.StatusOK, fmt.Sprintf("%s: %d clusters around %d primaries", name, len(clusters), len(primaries)), nil
}

func (r *partitionRun) export(ctx context.Context) (domain.StepStatus, string, error) {
	name := r.part.ExportName()
	if !r.recompute(domain.StepExport) {
		ok, err := r.o.exporter.Exists(name)
		if err != nil {
			return "", "", fmt.Errorf("check export %s: %w", name, err)
		}
		if ok {
			return domain.StatusSkipped, name + " exists", nil
		}
	}

	primaries, err := r.o.store.LoadPrimaryClusters(ctx, r.part.PrimaryName())
	if err != nil {
		return "", "", fmt.Errorf("load primary clusters: %w", err)
	}
	secondaries, err := r.o.store.LoadSecondaryClusters(ctx, r.part.SecondaryName())
	if err != nil {
		return "", "", fmt.Errorf("load secondary clusters: %w", err)
	}

	primaries = domain.EnrichWithPlaceNames(ctx, primaries, r.o.opts.Geocoder, r.logger)

	// publish first: a failed publish leaves no artifact, so a rerun retries it
	if pub := r.o.opts.Publisher; pub != nil {
		if err := pub.PublishClusters(ctx, r.key, primaries, secondaries); err != nil {
			return "", "", fmt.Errorf("publish clusters: %w", err)
		}
	}

	path, err := r.o.exporter.Render(ctx, name, primaries, secondaries)
	if err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	r.report.Artifact = path
	return domain.StatusOK, path, nil
}
