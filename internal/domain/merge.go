package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// ElevationTolerance is the largest angle difference, in degrees, at which
// two sweeps are treated as the same elevation.
const ElevationTolerance = 0.01

// afterScanUpdate, when set, observes the volume after every per-sweep update.
var afterScanUpdate func(*Volume)

// MergeScan merges a single-quantity sweep fragment into acc and returns it.
// A nil acc starts a new composite with the fragment's geometry and
// attributes. On error the accumulator is left untouched and nil is returned.
func MergeScan(acc, frag *Scan, meta MemberMetadata) (*Scan, error) {
	q, err := fragmentQuantity(frag)
	if err != nil {
		return nil, err
	}

	name := QualifiedQuantityName(q.Name, meta.PreprocessedFormat)
	if acc != nil && acc.HasQuantity(name) {
		return nil, fmt.Errorf("merge scan %s: quantity %q: %w", meta.BaseName, name, ErrDuplicateQuantity)
	}

	if acc == nil {
		acc = frag.skeleton()
	}

	c := q.Clone()
	c.Name = name
	acc.quantities = append(acc.quantities, c)
	return acc, nil
}

// QualifiedQuantityName appends the pre-processing format's extension to a
// quantity name so processed variants do not collide with the raw quantity,
// e.g. ("dBZ", "Surveillance.ppdf") -> "dBZ.ppdf".
func QualifiedQuantityName(name, preprocessedFormat string) string {
	if preprocessedFormat == "" {
		return name
	}
	if i := strings.LastIndexByte(preprocessedFormat, '.'); i >= 0 {
		return name + preprocessedFormat[i:]
	}
	return name + "." + preprocessedFormat
}

func fragmentQuantity(frag *Scan) (*Quantity, error) {
	if frag == nil {
		return nil, fmt.Errorf("%w: nil sweep fragment", ErrFormatMismatch)
	}
	if n := frag.QuantityCount(); n != 1 {
		return nil, fmt.Errorf("%w: got %d %v", ErrParameterCardinality, n, frag.QuantityNames())
	}
	return frag.quantities[0], nil
}

// MergeVolume merges a single-quantity volume fragment into acc and returns it.
//
// Fragment sweeps are matched to accumulated sweeps by elevation angle within
// ElevationTolerance. When acc is nil or memberIndex is 0 every matched sweep
// restarts from an empty composite. Sweeps are re-sorted by elevation after
// each per-sweep update. All checks run before the accumulator is touched; on
// error nil is returned.
func MergeVolume(acc, frag *Volume, meta MemberMetadata, memberIndex int) (*Volume, error) {
	if frag == nil || len(frag.Scans) == 0 {
		return nil, fmt.Errorf("merge volume %s: %w: empty volume fragment", meta.BaseName, ErrFormatMismatch)
	}

	names := make([]string, len(frag.Scans))
	for i, fs := range frag.Scans {
		q, err := fragmentQuantity(fs)
		if err != nil {
			return nil, fmt.Errorf("merge volume %s: sweep %d: %w", meta.BaseName, i, err)
		}
		names[i] = QualifiedQuantityName(q.Name, meta.PreprocessedFormat)
	}

	fresh := acc == nil
	baseline := fresh || memberIndex == 0

	var targets []*Scan
	if fresh {
		acc = frag.skeleton()
		for _, fs := range frag.Scans {
			acc.Scans = append(acc.Scans, fs.skeleton())
		}
		targets = slices.Clone(acc.Scans)
		acc.SortByElevation()
	} else {
		var err error
		targets, err = alignByElevation(acc, frag)
		if err != nil {
			return nil, fmt.Errorf("merge volume %s: %w", meta.BaseName, err)
		}
		if !baseline {
			for i, target := range targets {
				if target.HasQuantity(names[i]) {
					return nil, fmt.Errorf("merge volume %s: elevation %.2f: quantity %q: %w",
						meta.BaseName, target.Elevation, names[i], ErrDuplicateQuantity)
				}
			}
		}
	}

	for i, fs := range frag.Scans {
		target := targets[i]

		var composite *Scan
		if !baseline {
			composite = target
		}
		merged, err := MergeScan(composite, fs, meta)
		if err != nil {
			return nil, fmt.Errorf("merge volume %s: sweep %d: %w", meta.BaseName, i, err)
		}

		acc.RemoveScan(slices.Index(acc.Scans, target))
		acc.AddScan(merged)
		acc.SortByElevation()
		if afterScanUpdate != nil {
			afterScanUpdate(acc)
		}
	}

	return acc, nil
}

// alignByElevation pairs every fragment sweep with exactly one accumulated
// sweep of the same elevation. A fragment elevation within tolerance of more
// than one accumulated sweep is ambiguous and fails.
func alignByElevation(acc, frag *Volume) ([]*Scan, error) {
	if acc.ScanCount() != frag.ScanCount() {
		return nil, fmt.Errorf("%w: fragment has %d sweeps, volume has %d",
			ErrElevationMismatch, frag.ScanCount(), acc.ScanCount())
	}

	claimed := make([]bool, acc.ScanCount())
	targets := make([]*Scan, frag.ScanCount())
	for i, fs := range frag.Scans {
		match, candidates := -1, 0
		for j := range acc.ScanCount() {
			d := math.Abs(acc.Scan(j).Elevation - fs.Elevation)
			if d > ElevationTolerance {
				continue
			}
			candidates++
			if match < 0 || d < math.Abs(acc.Scan(match).Elevation-fs.Elevation) {
				match = j
			}
		}
		switch {
		case candidates == 0:
			return nil, fmt.Errorf("%w: no sweep at elevation %.3f in %v",
				ErrElevationMismatch, fs.Elevation, acc.Elevations())
		case candidates > 1:
			return nil, fmt.Errorf("%w: elevation %.3f is ambiguous in %v",
				ErrElevationMismatch, fs.Elevation, acc.Elevations())
		case claimed[match]:
			return nil, fmt.Errorf("%w: elevation %.3f appears twice in fragment",
				ErrElevationMismatch, fs.Elevation)
		}
		claimed[match] = true
		targets[i] = acc.Scan(match)
	}
	return targets, nil
}
