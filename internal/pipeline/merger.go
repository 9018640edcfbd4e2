package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
	"github.com/couchcryptid/radar-merge-service/internal/observability"
)

// Decoder sniffs and decodes raw RB5 captures.
type Decoder interface {
	IsValidFormat(path string) bool
	IsValidFormatBuffer(buf []byte) bool
	Decode(ctx context.Context, path string) (domain.Object, error)
	DecodeBuffer(ctx context.Context, name string, buf []byte) (domain.Object, error)
}

// Saver persists a merged object to a self-describing output file.
type Saver interface {
	Save(ctx context.Context, obj domain.Object, path string) error
}

// Member describes one archive entry.
type Member struct {
	Name string
	Size int64
}

// ArchiveReader walks the members of an open archive in stored order.
// Next returns io.EOF after the last member.
type ArchiveReader interface {
	Next() (Member, error)
	Read() ([]byte, error)
	Close() error
}

// ArchiveOpener opens archives for sequential reading.
type ArchiveOpener interface {
	Open(path string) (ArchiveReader, error)
}

// Merger drives the decode-and-merge runs. One Merger may serve many runs;
// each run owns its accumulator exclusively.
type Merger struct {
	decoder  Decoder
	archives ArchiveOpener
	saver    Saver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewMerger creates a Merger from its collaborators.
func NewMerger(decoder Decoder, archives ArchiveOpener, saver Saver, logger *slog.Logger, metrics *observability.Metrics) *Merger {
	return &Merger{
		decoder:  decoder,
		archives: archives,
		saver:    saver,
		logger:   logger,
		metrics:  metrics,
	}
}

// Single decodes one raw file without merging.
func (m *Merger) Single(ctx context.Context, path string) (domain.Object, error) {
	if err := ValidateInput(path); err != nil {
		return domain.Object{}, err
	}
	if !m.decoder.IsValidFormat(path) {
		return domain.Object{}, fmt.Errorf("%s is not a proper RB5 raw file: %w", path, domain.ErrFormatViolation)
	}
	obj, err := m.decoder.Decode(ctx, path)
	if err != nil {
		return domain.Object{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return obj, nil
}

// CombineFiles merges standalone raw files, in the given order, into one
// composite. File names are parsed without directory context.
func (m *Merger) CombineFiles(ctx context.Context, paths []string) (domain.Object, error) {
	defer m.observe("files", time.Now())

	acc := newAccumulator(m.metrics)
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return domain.Object{}, err
		}
		if err := ValidateInput(p); err != nil {
			return domain.Object{}, err
		}
		meta, err := domain.ParseMemberName(p, true)
		if err != nil {
			return domain.Object{}, err
		}
		if !meta.IsRawData() {
			m.skip(p, meta)
			continue
		}
		if !m.decoder.IsValidFormat(p) {
			return domain.Object{}, fmt.Errorf("%s is not a proper RB5 raw file: %w", p, domain.ErrFormatViolation)
		}
		obj, err := m.decoder.Decode(ctx, p)
		if err != nil {
			return domain.Object{}, fmt.Errorf("decode %s: %w", p, err)
		}
		if err := acc.add(obj, meta, i); err != nil {
			return domain.Object{}, err
		}
		m.logger.Debug("fragment merged", "path", p, "kind", obj.Kind, "member_index", i)
	}
	return acc.result()
}

// CombineArchive merges the raw members of one tar.gz archive, in stored
// order, into one composite. Member names are parsed with directory context
// and non-rawdata members are skipped.
func (m *Merger) CombineArchive(ctx context.Context, archivePath string) (domain.Object, error) {
	defer m.observe("archive", time.Now())
	return m.combineArchive(ctx, archivePath)
}

func (m *Merger) combineArchive(ctx context.Context, archivePath string) (domain.Object, error) {
	if err := ValidateInput(archivePath); err != nil {
		return domain.Object{}, err
	}

	r, err := m.archives.Open(archivePath)
	if err != nil {
		return domain.Object{}, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			m.logger.Warn("close archive failed", "archive", archivePath, "error", cerr)
		}
	}()

	acc := newAccumulator(m.metrics)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return domain.Object{}, err
		}
		member, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Object{}, fmt.Errorf("read archive %s: %w", archivePath, err)
		}

		meta, err := domain.ParseMemberName(member.Name, false)
		if err != nil {
			return domain.Object{}, fmt.Errorf("archive %s: %w", archivePath, err)
		}
		if !meta.IsRawData() {
			m.skip(member.Name, meta)
			continue
		}

		buf, err := r.Read()
		if err != nil {
			return domain.Object{}, fmt.Errorf("extract %s from %s: %w", member.Name, archivePath, err)
		}
		if int64(len(buf)) != member.Size {
			return domain.Object{}, fmt.Errorf("extract %s from %s: %w: read %d of %d bytes",
				member.Name, archivePath, domain.ErrFormatViolation, len(buf), member.Size)
		}
		if !m.decoder.IsValidFormatBuffer(buf) {
			return domain.Object{}, fmt.Errorf("%s is not a proper RB5 buffer: %w", member.Name, domain.ErrFormatViolation)
		}
		obj, err := m.decoder.DecodeBuffer(ctx, member.Name, buf)
		if err != nil {
			return domain.Object{}, fmt.Errorf("decode %s: %w", member.Name, err)
		}
		if err := acc.add(obj, meta, i); err != nil {
			return domain.Object{}, err
		}
		m.logger.Debug("fragment merged",
			"archive", archivePath, "member", member.Name, "kind", obj.Kind, "member_index", i)
	}

	obj, err := acc.result()
	if err != nil {
		return domain.Object{}, fmt.Errorf("archive %s: %w", archivePath, err)
	}
	return obj, nil
}

// CombineArchivesToVolume merges each single-sweep archive and aggregates
// the resulting sweeps into one volume for the scan cycle of the first.
func (m *Merger) CombineArchivesToVolume(ctx context.Context, archives []string, interval time.Duration, task string) (domain.Object, error) {
	defer m.observe("cycle", time.Now())

	objs := make([]domain.Object, 0, len(archives))
	for _, a := range archives {
		obj, err := m.combineArchive(ctx, a)
		if err != nil {
			return domain.Object{}, err
		}
		objs = append(objs, obj)
	}

	vol, err := domain.AggregateScans(objs, interval, task)
	if err != nil {
		return domain.Object{}, err
	}
	m.logger.Info("scans aggregated",
		"archives", len(archives), "date", vol.Date, "time", vol.Time, "sweeps", vol.ScanCount())
	return domain.VolumeObject(vol), nil
}

// Save hands a merged object to the Saver, creating the parent directory of
// out first.
func (m *Merger) Save(ctx context.Context, obj domain.Object, out string) error {
	if err := obj.Validate(); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	if out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("save %s: %w", out, err)
		}
	}
	if err := m.saver.Save(ctx, obj, out); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	m.metrics.ProductsSaved.Inc()
	m.logger.Info("product saved", "output", out, "kind", obj.Kind)
	return nil
}

func (m *Merger) skip(name string, meta domain.MemberMetadata) {
	m.metrics.MembersSkipped.Inc()
	m.logger.Debug("member skipped", "member", name, "category", meta.Category)
}

func (m *Merger) observe(operation string, start time.Time) {
	m.metrics.MergeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// accumulator is the in-progress composite of one run. Its kind is fixed
// by the first merged fragment.
type accumulator struct {
	metrics *observability.Metrics
	kind    domain.ObjectKind
	scan    *domain.Scan
	volume  *domain.Volume
}

func newAccumulator(metrics *observability.Metrics) *accumulator {
	return &accumulator{metrics: metrics}
}

func (a *accumulator) add(obj domain.Object, meta domain.MemberMetadata, memberIndex int) error {
	if err := obj.Validate(); err != nil {
		return fmt.Errorf("merge %s: %w", meta.BaseName, err)
	}
	if a.kind != "" && a.kind != obj.Kind {
		return fmt.Errorf("merge %s: %w: %s fragment into %s composite",
			meta.BaseName, domain.ErrFormatMismatch, obj.Kind, a.kind)
	}

	switch obj.Kind {
	case domain.KindVolume:
		v, err := domain.MergeVolume(a.volume, obj.Volume, meta, memberIndex)
		if err != nil {
			return err
		}
		a.volume = v
	case domain.KindScan:
		s, err := domain.MergeScan(a.scan, obj.Scan, meta)
		if err != nil {
			return err
		}
		a.scan = s
	}
	a.kind = obj.Kind
	a.metrics.FragmentsMerged.WithLabelValues(string(obj.Kind)).Inc()
	return nil
}

func (a *accumulator) result() (domain.Object, error) {
	switch a.kind {
	case domain.KindVolume:
		return domain.VolumeObject(a.volume), nil
	case domain.KindScan:
		return domain.ScanObject(a.scan), nil
	default:
		return domain.Object{}, domain.ErrNoData
	}
}
