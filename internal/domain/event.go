package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Job modes.
const (
	ModeCombine = "combine" // merge the fragments of one archive
	ModeCycle   = "cycle"   // merge each archive to a sweep, then aggregate into a volume
)

// RawEvent represents an unprocessed message from the job topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ArchiveJob asks for one merge run over one or more archives.
type ArchiveJob struct {
	ID              string   `json:"id"`
	Archives        []string `json:"archives"`
	Mode            string   `json:"mode,omitempty"`
	Output          string   `json:"output,omitempty"`
	IntervalMinutes float64  `json:"interval_minutes,omitempty"`
	Task            string   `json:"task,omitempty"`
}

// Interval returns the job's cycle interval, or zero when unset.
func (j ArchiveJob) Interval() time.Duration {
	return MinutesToInterval(j.IntervalMinutes)
}

// ParseArchiveJob decodes a job message and fills defaults.
func ParseArchiveJob(raw RawEvent) (ArchiveJob, error) {
	var job ArchiveJob
	if err := json.Unmarshal(raw.Value, &job); err != nil {
		return ArchiveJob{}, fmt.Errorf("parse archive job: %w", err)
	}
	if job.ID == "" {
		job.ID = string(raw.Key)
	}
	if job.Mode == "" {
		job.Mode = ModeCombine
	}

	switch job.Mode {
	case ModeCombine:
		if len(job.Archives) != 1 {
			return ArchiveJob{}, fmt.Errorf("parse archive job %s: combine needs exactly one archive, got %d",
				job.ID, len(job.Archives))
		}
	case ModeCycle:
		if len(job.Archives) == 0 {
			return ArchiveJob{}, fmt.Errorf("parse archive job %s: cycle needs at least one archive", job.ID)
		}
		if job.Output == "" {
			return ArchiveJob{}, fmt.Errorf("parse archive job %s: cycle needs an output path", job.ID)
		}
	default:
		return ArchiveJob{}, fmt.Errorf("parse archive job %s: unknown mode %q", job.ID, job.Mode)
	}
	if job.IntervalMinutes < 0 {
		return ArchiveJob{}, fmt.Errorf("parse archive job %s: negative interval_minutes", job.ID)
	}
	if job.IntervalMinutes > 0 && job.Interval() <= 0 {
		return ArchiveJob{}, fmt.Errorf("parse archive job %s: interval_minutes %g is shorter than a second",
			job.ID, job.IntervalMinutes)
	}
	return job, nil
}

// ProductEvent announces a persisted merge product.
type ProductEvent struct {
	RunID       string     `json:"run_id"`
	JobID       string     `json:"job_id"`
	Mode        string     `json:"mode"`
	Kind        ObjectKind `json:"kind"`
	Output      string     `json:"output"`
	Archives    []string   `json:"archives"`
	Source      string     `json:"source,omitempty"`
	Date        string     `json:"date,omitempty"`
	Time        string     `json:"time,omitempty"`
	Sweeps      int        `json:"sweeps"`
	Quantities  []string   `json:"quantities"`
	ProcessedAt time.Time  `json:"processed_at"`
}

// NewProductEvent summarizes a merged object written to output.
func NewProductEvent(runID string, job ArchiveJob, obj Object, output string) ProductEvent {
	ev := ProductEvent{
		RunID:       runID,
		JobID:       job.ID,
		Mode:        job.Mode,
		Kind:        obj.Kind,
		Output:      output,
		Archives:    job.Archives,
		ProcessedAt: clock.Now().UTC(),
	}

	var scans []*Scan
	switch obj.Kind {
	case KindScan:
		ev.Source, ev.Date, ev.Time = obj.Scan.Source, obj.Scan.Date, obj.Scan.Time
		scans = []*Scan{obj.Scan}
	case KindVolume:
		ev.Source, ev.Date, ev.Time = obj.Volume.Source, obj.Volume.Date, obj.Volume.Time
		scans = obj.Volume.Scans
	}

	ev.Sweeps = len(scans)
	seen := make(map[string]struct{})
	ev.Quantities = []string{}
	for _, s := range scans {
		for _, name := range s.QuantityNames() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			ev.Quantities = append(ev.Quantities, name)
		}
	}
	return ev
}

// OutputEvent is the serialized form destined for the product topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// SerializeProductEvent encodes a product event for the sink topic.
func SerializeProductEvent(ev ProductEvent) (OutputEvent, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize product event: %w", err)
	}
	return OutputEvent{
		Key:   []byte(ev.JobID),
		Value: data,
		Headers: map[string]string{
			"kind":         string(ev.Kind),
			"processed_at": ev.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
