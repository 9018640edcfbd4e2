package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

// Ledger remembers which jobs have already produced a product.
type Ledger interface {
	Seen(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key, runID, output string) error
}

// JobDefaults fill in what a job message leaves unset.
type JobDefaults struct {
	BaseDir  string
	Interval time.Duration
	Task     string
}

// JobTransformer implements Transformer by running the merge an archive job
// asks for and persisting the product.
type JobTransformer struct {
	merger   *Merger
	ledger   Ledger
	defaults JobDefaults
	logger   *slog.Logger
}

// NewJobTransformer creates a JobTransformer. Pass a nil ledger to process
// every job regardless of history.
func NewJobTransformer(merger *Merger, ledger Ledger, defaults JobDefaults, logger *slog.Logger) *JobTransformer {
	if defaults.BaseDir == "" {
		defaults.BaseDir = "."
	}
	return &JobTransformer{
		merger:   merger,
		ledger:   ledger,
		defaults: defaults,
		logger:   logger,
	}
}

func (t *JobTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	job, err := domain.ParseArchiveJob(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	key := LedgerKey(job)
	if t.ledger != nil {
		seen, err := t.ledger.Seen(ctx, key)
		if err != nil {
			return domain.OutputEvent{}, fmt.Errorf("ledger lookup %s: %w", job.ID, err)
		}
		if seen {
			return domain.OutputEvent{}, fmt.Errorf("job %s: %w", job.ID, domain.ErrAlreadyProcessed)
		}
	}

	runID := uuid.NewString()
	logger := t.logger.With("job_id", job.ID, "run_id", runID, "mode", job.Mode)
	logger.Info("merge job started", "archives", len(job.Archives))

	obj, out, err := t.run(ctx, job)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := t.merger.Save(ctx, obj, out); err != nil {
		return domain.OutputEvent{}, fmt.Errorf("job %s: %w", job.ID, err)
	}

	logger.Info("merge job finished", "output", out, "kind", obj.Kind)
	return domain.SerializeProductEvent(domain.NewProductEvent(runID, job, obj, out))
}

// Finalize records published products in the ledger. The pipeline calls it
// only after the events are on the topic.
func (t *JobTransformer) Finalize(ctx context.Context, events []domain.OutputEvent) {
	if t.ledger == nil {
		return
	}
	for _, out := range events {
		var ev domain.ProductEvent
		if err := json.Unmarshal(out.Value, &ev); err != nil {
			t.logger.Warn("ledger record skipped", "key", string(out.Key), "error", err)
			continue
		}
		key := LedgerKey(domain.ArchiveJob{Mode: ev.Mode, Archives: ev.Archives})
		if err := t.ledger.Record(ctx, key, ev.RunID, ev.Output); err != nil {
			// The product exists; a missing ledger row only means a rerun.
			t.logger.Warn("ledger record failed", "job_id", ev.JobID, "run_id", ev.RunID, "error", err)
		}
	}
}

func (t *JobTransformer) run(ctx context.Context, job domain.ArchiveJob) (domain.Object, string, error) {
	switch job.Mode {
	case domain.ModeCycle:
		interval := job.Interval()
		if interval <= 0 {
			interval = t.defaults.Interval
		}
		task := job.Task
		if task == "" {
			task = t.defaults.Task
		}
		obj, err := t.merger.CombineArchivesToVolume(ctx, job.Archives, interval, task)
		return obj, job.Output, err
	default:
		archive := job.Archives[0]
		obj, err := t.merger.CombineArchive(ctx, archive)
		if err != nil {
			return domain.Object{}, "", err
		}
		out, err := ResolveOutput(archive, job.Output, t.defaults.BaseDir, false)
		return obj, out, err
	}
}

// LedgerKey identifies a job by what it merges, so redelivered or
// resubmitted jobs over the same archives are recognized.
func LedgerKey(job domain.ArchiveJob) string {
	return job.Mode + ":" + strings.Join(job.Archives, ",")
}
