package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
	"github.com/couchcryptid/radar-merge-service/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
	err     error
	calls   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for jobs
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockTransformer struct {
	errs      map[string]error
	finalized []domain.OutputEvent
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	if err := m.errs[string(raw.Key)]; err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.OutputEvent{Key: raw.Key, Value: raw.Value}, nil
}

func (m *mockTransformer) Finalize(_ context.Context, events []domain.OutputEvent) {
	m.finalized = append(m.finalized, events...)
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []domain.OutputEvent
	err      error
	failures int // calls to fail before succeeding
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("kafka: not enough replicas")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

func makeJob(id string, committed *atomic.Int64) domain.RawEvent {
	return domain.RawEvent{
		Key:   []byte(id),
		Value: []byte(fmt.Sprintf(`{"id":%q,"archives":["CASET_201706141400_Surveillance_vol.tar.gz"]}`, id)),
		Topic: "rb5-archive-jobs",
		Commit: func(context.Context) error {
			if committed != nil {
				committed.Add(1)
			}
			return nil
		},
	}
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{makeJob("job-1", &committed), makeJob("job-2", &committed)}}}
	tfm := &mockTransformer{}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, tfm, ldr, slog.Default(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Equal(t, 2, ldr.count())
	assert.Len(t, tfm.finalized, 2)
	assert.Equal(t, int64(2), committed.Load())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.JobsConsumed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ProductsProduced), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no jobs, will block
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.count())
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_FailedJobIsSkipped(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{makeJob("bad", &committed), makeJob("good", &committed)}}}
	tfm := &mockTransformer{errs: map[string]error{"bad": domain.ErrElevationMismatch}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, tfm, ldr, slog.Default(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	require.Equal(t, 1, ldr.count())
	assert.Equal(t, []byte("good"), ldr.loaded[0].Key)
	assert.Equal(t, int64(2), committed.Load(), "failed jobs are committed too")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.JobErrors), 0)
}

func TestPipeline_Run_AlreadyProcessed(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{makeJob("dup", &committed)}}}
	tfm := &mockTransformer{errs: map[string]error{
		"dup": fmt.Errorf("job dup: %w", domain.ErrAlreadyProcessed),
	}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, tfm, ldr, slog.Default(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Zero(t, ldr.count())
	assert.Equal(t, int64(1), committed.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LedgerHits), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.JobErrors), 0)
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{makeJob("job-1", &committed)}}}
	tfm := &mockTransformer{}
	ldr := &mockLoader{err: errors.New("kafka: leader not available")}

	p := pipeline.New(ext, tfm, ldr, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Zero(t, committed.Load())
	assert.Empty(t, tfm.finalized)
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadFailureCommitsNoOffsetInBatch(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{
		makeJob("good-1", &committed),
		makeJob("bad", &committed),
		makeJob("dup", &committed),
		makeJob("good-2", &committed),
	}}}
	tfm := &mockTransformer{errs: map[string]error{
		"bad": domain.ErrElevationMismatch,
		"dup": fmt.Errorf("job dup: %w", domain.ErrAlreadyProcessed),
	}}
	ldr := &mockLoader{err: errors.New("kafka: leader not available")}

	p := pipeline.New(ext, tfm, ldr, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Zero(t, committed.Load(), "offsets past unpublished products must stay uncommitted")
}

func TestPipeline_Run_RedeliveredJobIsPublishedAfterLoadFailure(t *testing.T) {
	f := newJobFixture(t)
	archive := writeArchive(t, f.dir, surveillanceArchive)

	var committed atomic.Int64
	raw := jobEvent(t, domain.ArchiveJob{ID: "job-1", Archives: []string{archive}})
	raw.Commit = func(context.Context) error {
		committed.Add(1)
		return nil
	}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}, {raw}}}
	ldr := &mockLoader{failures: 1}
	metrics := newTestMetrics()

	p := pipeline.New(ext, f.transformer, ldr, slog.Default(), metrics, 10)
	runFor(t, p, 700*time.Millisecond)

	require.Equal(t, 1, ldr.count(), "redelivery must publish the product")
	assert.Equal(t, []byte("job-1"), ldr.loaded[0].Key)
	assert.Equal(t, []string{"combine:" + archive}, f.ledger.recorded)
	assert.Len(t, f.saver.saved, 2)
	assert.Equal(t, int64(1), committed.Load())
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.LedgerHits), 0)
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	ext := &mockExtractor{err: errors.New("broker unreachable")}

	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, 500*time.Millisecond)

	// 200ms then 400ms of backoff leave room for at most three fetches.
	calls := ext.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(1))
	assert.LessOrEqual(t, calls, int64(3))
}
