package domain

import (
	"fmt"
	"slices"
	"sort"
)

// ObjectKind distinguishes single-elevation sweeps from multi-elevation volumes.
type ObjectKind string

const (
	KindScan   ObjectKind = "SCAN"
	KindVolume ObjectKind = "PVOL"
)

// Quantity is one named measured variable with its sample buffer.
type Quantity struct {
	Name     string
	Gain     float64
	Offset   float64
	Nodata   float64
	Undetect float64
	Rays     int
	Bins     int
	Data     []byte
}

// Clone returns a deep copy of q.
func (q *Quantity) Clone() *Quantity {
	c := *q
	c.Data = slices.Clone(q.Data)
	return &c
}

// Scan is a single-elevation sweep. A decoded fragment carries exactly one
// quantity; a composite accumulates many under unique names.
type Scan struct {
	Date       string // YYYYMMDD
	Time       string // HHMMSS
	Source     string
	Longitude  float64
	Latitude   float64
	Height     float64
	Beamwidth  float64
	Elevation  float64
	Attributes Attributes

	quantities []*Quantity
}

// SetAttribute stores an attribute on the scan.
func (s *Scan) SetAttribute(key AttributeKey, value any) error {
	if s.Attributes == nil {
		s.Attributes = Attributes{}
	}
	return s.Attributes.Set(key, value)
}

// Attribute returns the attribute stored under key.
func (s *Scan) Attribute(key AttributeKey) (any, bool) {
	return s.Attributes.Get(key)
}

// QuantityCount returns the number of quantities held.
func (s *Scan) QuantityCount() int { return len(s.quantities) }

// QuantityNames returns quantity names in insertion order.
func (s *Scan) QuantityNames() []string {
	names := make([]string, len(s.quantities))
	for i, q := range s.quantities {
		names[i] = q.Name
	}
	return names
}

// Quantity returns the quantity with the given name.
func (s *Scan) Quantity(name string) (*Quantity, bool) {
	i := s.quantityIndex(name)
	if i < 0 {
		return nil, false
	}
	return s.quantities[i], true
}

// HasQuantity reports whether a quantity with the given name is present.
func (s *Scan) HasQuantity(name string) bool {
	return s.quantityIndex(name) >= 0
}

// AddQuantity appends q. The scan takes ownership of q.
func (s *Scan) AddQuantity(q *Quantity) error {
	if q == nil || q.Name == "" {
		return fmt.Errorf("add quantity: %w: empty name", ErrFormatViolation)
	}
	if s.HasQuantity(q.Name) {
		return fmt.Errorf("add quantity %q: %w", q.Name, ErrDuplicateQuantity)
	}
	s.quantities = append(s.quantities, q)
	return nil
}

// Clone returns a deep copy of s including its quantities.
func (s *Scan) Clone() *Scan {
	c := s.skeleton()
	for _, q := range s.quantities {
		c.quantities = append(c.quantities, q.Clone())
	}
	return c
}

// skeleton copies geometry and attributes with an empty quantity set.
func (s *Scan) skeleton() *Scan {
	return &Scan{
		Date:       s.Date,
		Time:       s.Time,
		Source:     s.Source,
		Longitude:  s.Longitude,
		Latitude:   s.Latitude,
		Height:     s.Height,
		Beamwidth:  s.Beamwidth,
		Elevation:  s.Elevation,
		Attributes: s.Attributes.Clone(),
	}
}

func (s *Scan) quantityIndex(name string) int {
	return slices.IndexFunc(s.quantities, func(q *Quantity) bool { return q.Name == name })
}

// Volume is an ordered collection of sweeps captured in one scan cycle.
type Volume struct {
	Date       string // YYYYMMDD
	Time       string // HHMMSS
	Source     string
	Longitude  float64
	Latitude   float64
	Height     float64
	Beamwidth  float64
	Attributes Attributes
	Scans      []*Scan
}

// SetAttribute stores a volume-level attribute.
func (v *Volume) SetAttribute(key AttributeKey, value any) error {
	if v.Attributes == nil {
		v.Attributes = Attributes{}
	}
	return v.Attributes.Set(key, value)
}

// Attribute returns the volume-level attribute stored under key.
func (v *Volume) Attribute(key AttributeKey) (any, bool) {
	return v.Attributes.Get(key)
}

// ScanCount returns the number of sweeps.
func (v *Volume) ScanCount() int { return len(v.Scans) }

// Scan returns the sweep at index i.
func (v *Volume) Scan(i int) *Scan { return v.Scans[i] }

// AddScan appends s.
func (v *Volume) AddScan(s *Scan) { v.Scans = append(v.Scans, s) }

// RemoveScan drops the sweep at index i.
func (v *Volume) RemoveScan(i int) { v.Scans = slices.Delete(v.Scans, i, i+1) }

// SortByElevation orders sweeps ascending by elevation angle. Equal angles
// keep their relative order.
func (v *Volume) SortByElevation() {
	sort.SliceStable(v.Scans, func(i, j int) bool {
		return v.Scans[i].Elevation < v.Scans[j].Elevation
	})
}

// IsSortedByElevation reports whether sweeps are non-decreasing in elevation.
func (v *Volume) IsSortedByElevation() bool {
	return sort.SliceIsSorted(v.Scans, func(i, j int) bool {
		return v.Scans[i].Elevation < v.Scans[j].Elevation
	})
}

// Elevations returns the elevation angle of each sweep in order.
func (v *Volume) Elevations() []float64 {
	out := make([]float64, len(v.Scans))
	for i, s := range v.Scans {
		out[i] = s.Elevation
	}
	return out
}

// Clone returns a deep copy of v.
func (v *Volume) Clone() *Volume {
	c := v.skeleton()
	for _, s := range v.Scans {
		c.Scans = append(c.Scans, s.Clone())
	}
	return c
}

func (v *Volume) skeleton() *Volume {
	return &Volume{
		Date:       v.Date,
		Time:       v.Time,
		Source:     v.Source,
		Longitude:  v.Longitude,
		Latitude:   v.Latitude,
		Height:     v.Height,
		Beamwidth:  v.Beamwidth,
		Attributes: v.Attributes.Clone(),
	}
}

// Object is a decoded or merged radar object. Exactly one of Scan or Volume
// is set, matching Kind.
type Object struct {
	Kind   ObjectKind
	Scan   *Scan
	Volume *Volume
}

// ScanObject wraps s as an Object.
func ScanObject(s *Scan) Object { return Object{Kind: KindScan, Scan: s} }

// VolumeObject wraps v as an Object.
func VolumeObject(v *Volume) Object { return Object{Kind: KindVolume, Volume: v} }

// Validate checks that the payload matches the declared kind.
func (o Object) Validate() error {
	switch o.Kind {
	case KindScan:
		if o.Scan == nil || o.Volume != nil {
			return fmt.Errorf("%w: %s object without a single sweep", ErrFormatMismatch, o.Kind)
		}
	case KindVolume:
		if o.Volume == nil || o.Scan != nil {
			return fmt.Errorf("%w: %s object without a volume", ErrFormatMismatch, o.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown object kind %q", ErrFormatMismatch, o.Kind)
	}
	return nil
}
