package domain

import (
	"fmt"
	"maps"
	"slices"
)

// AttributeKey is a hierarchical ODIM attribute name such as "how/task".
type AttributeKey string

// Recognized attribute keys.
const (
	AttrTask       AttributeKey = "how/task"
	AttrTXType     AttributeKey = "how/TXtype"
	AttrBeamWidthH AttributeKey = "how/beamwH"
	AttrBeamWidthV AttributeKey = "how/beamwV"
	AttrPolMode    AttributeKey = "how/polmode"
	AttrPolType    AttributeKey = "how/poltype"
	AttrSoftware   AttributeKey = "how/software"
	AttrSWVersion  AttributeKey = "how/sw_version"
	AttrSystem     AttributeKey = "how/system"
	AttrWavelength AttributeKey = "how/wavelength"
	AttrStartEpoch AttributeKey = "how/startepochs"
	AttrEndEpoch   AttributeKey = "how/endepochs"
	AttrRPM        AttributeKey = "how/rpm"
	AttrPulseWidth AttributeKey = "how/pulsewidth"
	AttrLowPRF     AttributeKey = "how/lowprf"
	AttrHighPRF    AttributeKey = "how/highprf"
	AttrNyquist    AttributeKey = "how/NI"
	AttrScanCount  AttributeKey = "how/scan_count"
)

var knownAttributes = map[AttributeKey]struct{}{
	AttrTask: {}, AttrTXType: {}, AttrBeamWidthH: {}, AttrBeamWidthV: {},
	AttrPolMode: {}, AttrPolType: {}, AttrSoftware: {}, AttrSWVersion: {},
	AttrSystem: {}, AttrWavelength: {}, AttrStartEpoch: {}, AttrEndEpoch: {},
	AttrRPM: {}, AttrPulseWidth: {}, AttrLowPRF: {}, AttrHighPRF: {},
	AttrNyquist: {}, AttrScanCount: {},
}

// volumeSeedAttributes are copied verbatim from the first sweep when a
// volume is assembled from independent sweeps.
var volumeSeedAttributes = []AttributeKey{
	AttrTXType,
	AttrBeamWidthH,
	AttrBeamWidthV,
	AttrPolMode,
	AttrPolType,
	AttrSoftware,
	AttrSWVersion,
	AttrSystem,
	AttrWavelength,
}

// IsKnownAttribute reports whether key belongs to the recognized set.
func IsKnownAttribute(key AttributeKey) bool {
	_, ok := knownAttributes[key]
	return ok
}

// Attributes is an attribute bag restricted to the recognized keys.
// Values are strings, integers, floats, or slices of those as produced by the decoder.
type Attributes map[AttributeKey]any

// Set stores value under key, rejecting keys outside the recognized set.
func (a Attributes) Set(key AttributeKey, value any) error {
	if !IsKnownAttribute(key) {
		return fmt.Errorf("set attribute %q: %w", key, ErrUnknownAttribute)
	}
	a[key] = value
	return nil
}

// Get returns the value stored under key.
func (a Attributes) Get(key AttributeKey) (any, bool) {
	v, ok := a[key]
	return v, ok
}

// Keys returns the stored keys in lexical order.
func (a Attributes) Keys() []AttributeKey {
	return slices.Sorted(maps.Keys(a))
}

// Clone returns a shallow copy. Slice values are copied so the clone
// never shares backing arrays with the receiver.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneAttributeValue(v)
	}
	return out
}

// AttributesFromMap converts a decoder-supplied map into Attributes,
// failing on the first unrecognized key in lexical order.
func AttributesFromMap(m map[string]any) (Attributes, error) {
	out := make(Attributes, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if err := out.Set(AttributeKey(k), m[k]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func cloneAttributeValue(v any) any {
	switch t := v.(type) {
	case []float64:
		return slices.Clone(t)
	case []int64:
		return slices.Clone(t)
	case []string:
		return slices.Clone(t)
	case []any:
		return slices.Clone(t)
	default:
		return v
	}
}
