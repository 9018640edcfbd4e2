package bridge

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

// Wire types exchanged with the bridge executable. Field names follow the
// ODIM vocabulary the bridge uses.

type wireQuantity struct {
	Name     string  `msgpack:"quantity"`
	Gain     float64 `msgpack:"gain"`
	Offset   float64 `msgpack:"offset"`
	Nodata   float64 `msgpack:"nodata"`
	Undetect float64 `msgpack:"undetect"`
	Rays     int     `msgpack:"nrays"`
	Bins     int     `msgpack:"nbins"`
	Data     []byte  `msgpack:"data"`
}

type wireScan struct {
	Date       string         `msgpack:"date"`
	Time       string         `msgpack:"time"`
	Source     string         `msgpack:"source"`
	Longitude  float64        `msgpack:"lon"`
	Latitude   float64        `msgpack:"lat"`
	Height     float64        `msgpack:"height"`
	Beamwidth  float64        `msgpack:"beamwidth"`
	Elevation  float64        `msgpack:"elangle"`
	Attributes map[string]any `msgpack:"attributes,omitempty"`
	Quantities []wireQuantity `msgpack:"parameters"`
}

type wireVolume struct {
	Date       string         `msgpack:"date"`
	Time       string         `msgpack:"time"`
	Source     string         `msgpack:"source"`
	Longitude  float64        `msgpack:"lon"`
	Latitude   float64        `msgpack:"lat"`
	Height     float64        `msgpack:"height"`
	Beamwidth  float64        `msgpack:"beamwidth"`
	Attributes map[string]any `msgpack:"attributes,omitempty"`
	Scans      []wireScan     `msgpack:"scans"`
}

type wireObject struct {
	Object string      `msgpack:"object"`
	Scan   *wireScan   `msgpack:"scan,omitempty"`
	Volume *wireVolume `msgpack:"volume,omitempty"`
}

// EncodeObject serializes obj for the bridge's save command.
func EncodeObject(obj domain.Object) ([]byte, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	w := wireObject{Object: string(obj.Kind)}
	switch obj.Kind {
	case domain.KindScan:
		s := scanToWire(obj.Scan)
		w.Scan = &s
	case domain.KindVolume:
		w.Volume = volumeToWire(obj.Volume)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&w); err != nil {
		return nil, fmt.Errorf("encode %s object: %w", obj.Kind, err)
	}
	return buf.Bytes(), nil
}

// DecodeObject parses the bridge's decode output. An attribute outside the
// recognized set fails with domain.ErrUnknownAttribute.
func DecodeObject(data []byte) (domain.Object, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var w wireObject
	if err := dec.Decode(&w); err != nil {
		return domain.Object{}, fmt.Errorf("decode bridge output: %w", err)
	}

	switch domain.ObjectKind(w.Object) {
	case domain.KindScan:
		if w.Scan == nil {
			return domain.Object{}, fmt.Errorf("decode bridge output: %w: SCAN without sweep", domain.ErrFormatMismatch)
		}
		s, err := scanFromWire(*w.Scan)
		if err != nil {
			return domain.Object{}, err
		}
		return domain.ScanObject(s), nil
	case domain.KindVolume:
		if w.Volume == nil {
			return domain.Object{}, fmt.Errorf("decode bridge output: %w: PVOL without volume", domain.ErrFormatMismatch)
		}
		v, err := volumeFromWire(*w.Volume)
		if err != nil {
			return domain.Object{}, err
		}
		return domain.VolumeObject(v), nil
	default:
		return domain.Object{}, fmt.Errorf("decode bridge output: %w: object type %q", domain.ErrFormatMismatch, w.Object)
	}
}

func scanToWire(s *domain.Scan) wireScan {
	w := wireScan{
		Date:       s.Date,
		Time:       s.Time,
		Source:     s.Source,
		Longitude:  s.Longitude,
		Latitude:   s.Latitude,
		Height:     s.Height,
		Beamwidth:  s.Beamwidth,
		Elevation:  s.Elevation,
		Attributes: attributesToWire(s.Attributes),
		Quantities: make([]wireQuantity, 0, s.QuantityCount()),
	}
	for _, name := range s.QuantityNames() {
		q, _ := s.Quantity(name)
		w.Quantities = append(w.Quantities, wireQuantity{
			Name:     q.Name,
			Gain:     q.Gain,
			Offset:   q.Offset,
			Nodata:   q.Nodata,
			Undetect: q.Undetect,
			Rays:     q.Rays,
			Bins:     q.Bins,
			Data:     q.Data,
		})
	}
	return w
}

func volumeToWire(v *domain.Volume) *wireVolume {
	w := &wireVolume{
		Date:       v.Date,
		Time:       v.Time,
		Source:     v.Source,
		Longitude:  v.Longitude,
		Latitude:   v.Latitude,
		Height:     v.Height,
		Beamwidth:  v.Beamwidth,
		Attributes: attributesToWire(v.Attributes),
		Scans:      make([]wireScan, 0, len(v.Scans)),
	}
	for _, s := range v.Scans {
		w.Scans = append(w.Scans, scanToWire(s))
	}
	return w
}

func scanFromWire(w wireScan) (*domain.Scan, error) {
	attrs, err := domain.AttributesFromMap(w.Attributes)
	if err != nil {
		return nil, fmt.Errorf("decode bridge output: elevation %.2f: %w", w.Elevation, err)
	}
	s := &domain.Scan{
		Date:       w.Date,
		Time:       w.Time,
		Source:     w.Source,
		Longitude:  w.Longitude,
		Latitude:   w.Latitude,
		Height:     w.Height,
		Beamwidth:  w.Beamwidth,
		Elevation:  w.Elevation,
		Attributes: attrs,
	}
	for _, q := range w.Quantities {
		err := s.AddQuantity(&domain.Quantity{
			Name:     q.Name,
			Gain:     q.Gain,
			Offset:   q.Offset,
			Nodata:   q.Nodata,
			Undetect: q.Undetect,
			Rays:     q.Rays,
			Bins:     q.Bins,
			Data:     q.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("decode bridge output: elevation %.2f: %w", w.Elevation, err)
		}
	}
	return s, nil
}

func volumeFromWire(w wireVolume) (*domain.Volume, error) {
	attrs, err := domain.AttributesFromMap(w.Attributes)
	if err != nil {
		return nil, fmt.Errorf("decode bridge output: volume: %w", err)
	}
	v := &domain.Volume{
		Date:       w.Date,
		Time:       w.Time,
		Source:     w.Source,
		Longitude:  w.Longitude,
		Latitude:   w.Latitude,
		Height:     w.Height,
		Beamwidth:  w.Beamwidth,
		Attributes: attrs,
	}
	for _, ws := range w.Scans {
		s, err := scanFromWire(ws)
		if err != nil {
			return nil, err
		}
		v.AddScan(s)
	}
	return v, nil
}

func attributesToWire(a domain.Attributes) map[string]any {
	if len(a) == 0 {
		return nil
	}
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[string(k)] = v
	}
	return out
}
