package domain

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultCycleInterval applies when no interval is configured.
	DefaultCycleInterval = 5 * time.Minute

	// DefaultTaskName applies when no task name is configured.
	DefaultTaskName = "dummy"

	odimDateLayout = "20060102"
	odimTimeLayout = "150405"
)

// MinutesToInterval converts a possibly fractional number of minutes to a
// cycle interval rounded to whole seconds. Non-finite input yields zero.
func MinutesToInterval(minutes float64) time.Duration {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return 0
	}
	return time.Duration(math.Round(minutes*60)) * time.Second
}

// FloorToInterval floors t to a multiple of interval counted from the Unix
// epoch in UTC. Intervals below one second are treated as one second.
func FloorToInterval(t time.Time, interval time.Duration) time.Time {
	step := int64(interval / time.Second)
	if step < 1 {
		step = 1
	}
	secs := t.Unix()
	rem := secs % step
	if rem < 0 {
		rem += step
	}
	return time.Unix(secs-rem, 0).UTC()
}

// CycleTime parses an ODIM date (YYYYMMDD) and time (HHMMSS) as UTC and
// floors the result to the cycle interval.
func CycleTime(date, clock string, interval time.Duration) (time.Time, error) {
	t, err := time.ParseInLocation(odimDateLayout+odimTimeLayout, date+clock, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("cycle time %s %s: %w", date, clock, ErrFormatViolation)
	}
	return FloorToInterval(t, interval), nil
}

// AggregateScans builds a volume from independent single-elevation sweeps.
// The first sweep seeds the volume's geometry, its cycle-floored date/time,
// and the volume-level attributes; every sweep is appended in input order.
func AggregateScans(objs []Object, interval time.Duration, task string) (*Volume, error) {
	if interval <= 0 {
		interval = DefaultCycleInterval
	}
	if task == "" {
		task = DefaultTaskName
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("aggregate scans: %w: no scans to aggregate", ErrFormatMismatch)
	}

	var vol *Volume
	for i, obj := range objs {
		if obj.Kind != KindScan || obj.Scan == nil {
			return nil, fmt.Errorf("aggregate scans: object %d: %w: expected single-sweep object, got %q",
				i, ErrFormatMismatch, obj.Kind)
		}
		if vol == nil {
			var err error
			vol, err = seedVolume(obj.Scan, interval, task)
			if err != nil {
				return nil, fmt.Errorf("aggregate scans: %w", err)
			}
		}
		vol.AddScan(obj.Scan.Clone())
	}
	return vol, nil
}

func seedVolume(first *Scan, interval time.Duration, task string) (*Volume, error) {
	cycle, err := CycleTime(first.Date, first.Time, interval)
	if err != nil {
		return nil, err
	}

	vol := &Volume{
		Date:       cycle.Format(odimDateLayout),
		Time:       cycle.Format(odimTimeLayout),
		Source:     first.Source,
		Longitude:  first.Longitude,
		Latitude:   first.Latitude,
		Height:     first.Height,
		Beamwidth:  first.Beamwidth,
		Attributes: Attributes{AttrTask: task},
	}
	for _, key := range volumeSeedAttributes {
		if v, ok := first.Attribute(key); ok {
			vol.Attributes[key] = cloneAttributeValue(v)
		}
	}
	return vol, nil
}
