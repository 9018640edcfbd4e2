package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
	"github.com/couchcryptid/radar-merge-service/internal/observability"
	"github.com/couchcryptid/radar-merge-service/internal/pipeline"
)

const rawHeader = "<volume version=\"5.34.16\">"

// fakeDecoder serves pre-built objects keyed by full name or base name. Anything that does
// not start with rawHeader fails the sniff.
type fakeDecoder struct {
	objects map[string]domain.Object
	decoded []string
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{objects: make(map[string]domain.Object)}
}

func (d *fakeDecoder) add(name string, obj domain.Object) {
	d.objects[name] = obj
}

func (d *fakeDecoder) IsValidFormat(path string) bool {
	buf, err := os.ReadFile(path)
	return err == nil && d.IsValidFormatBuffer(buf)
}

func (d *fakeDecoder) IsValidFormatBuffer(buf []byte) bool {
	return bytes.HasPrefix(buf, []byte(rawHeader))
}

func (d *fakeDecoder) Decode(ctx context.Context, path string) (domain.Object, error) {
	return d.DecodeBuffer(ctx, path, nil)
}

func (d *fakeDecoder) DecodeBuffer(_ context.Context, name string, _ []byte) (domain.Object, error) {
	d.decoded = append(d.decoded, filepath.Base(name))
	obj, ok := d.objects[name]
	if !ok {
		obj, ok = d.objects[filepath.Base(name)]
	}
	if !ok {
		return domain.Object{}, fmt.Errorf("no fixture for %s", name)
	}
	// Decoders hand out fresh objects on every call.
	if obj.Scan != nil {
		return domain.ScanObject(obj.Scan.Clone()), nil
	}
	return domain.VolumeObject(obj.Volume.Clone()), nil
}

type fakeMember struct {
	name string
	data []byte
	size int64 // defaults to len(data)
}

// fakeArchives serves member lists keyed by archive base name.
type fakeArchives struct {
	members map[string][]fakeMember
	openErr error
	closed  int
}

func newFakeArchives() *fakeArchives {
	return &fakeArchives{members: make(map[string][]fakeMember)}
}

func (a *fakeArchives) Open(path string) (pipeline.ArchiveReader, error) {
	if a.openErr != nil {
		return nil, a.openErr
	}
	members, ok := a.members[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("no archive fixture for %s", path)
	}
	return &fakeArchiveReader{owner: a, members: members, pos: -1}, nil
}

type fakeArchiveReader struct {
	owner   *fakeArchives
	members []fakeMember
	pos     int
}

func (r *fakeArchiveReader) Next() (pipeline.Member, error) {
	r.pos++
	if r.pos >= len(r.members) {
		return pipeline.Member{}, io.EOF
	}
	m := r.members[r.pos]
	size := m.size
	if size == 0 {
		size = int64(len(m.data))
	}
	return pipeline.Member{Name: m.name, Size: size}, nil
}

func (r *fakeArchiveReader) Read() ([]byte, error) {
	if r.pos < 0 || r.pos >= len(r.members) {
		return nil, errors.New("no current member")
	}
	return r.members[r.pos].data, nil
}

func (r *fakeArchiveReader) Close() error {
	r.owner.closed++
	return nil
}

type savedObject struct {
	obj  domain.Object
	path string
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []savedObject
	err   error
}

func (s *fakeSaver) Save(_ context.Context, obj domain.Object, path string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedObject{obj: obj, path: path})
	return nil
}

type fakeLedger struct {
	seen      map[string]bool
	recorded  []string
	lookupErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]bool)}
}

func (l *fakeLedger) Seen(_ context.Context, key string) (bool, error) {
	if l.lookupErr != nil {
		return false, l.lookupErr
	}
	return l.seen[key], nil
}

func (l *fakeLedger) Record(_ context.Context, key, _, _ string) error {
	l.seen[key] = true
	l.recorded = append(l.recorded, key)
	return nil
}

// --- fixtures ---

func sweep(t *testing.T, elevation float64, quantity string) *domain.Scan {
	t.Helper()
	s := &domain.Scan{
		Date:       "20170614",
		Time:       "140003",
		Source:     "NOD:caxxx,PLC:Exeter",
		Longitude:  -81.38,
		Latitude:   43.37,
		Height:     317,
		Beamwidth:  1,
		Elevation:  elevation,
		Attributes: domain.Attributes{domain.AttrWavelength: 5.3},
	}
	require.NoError(t, s.AddQuantity(&domain.Quantity{
		Name:   quantity,
		Gain:   0.5,
		Nodata: 255,
		Rays:   360,
		Bins:   2,
		Data:   []byte(quantity),
	}))
	return s
}

func volume(t *testing.T, quantity string, elevations ...float64) *domain.Volume {
	t.Helper()
	v := &domain.Volume{
		Date:       "20170614",
		Time:       "140003",
		Source:     "NOD:caxxx,PLC:Exeter",
		Longitude:  -81.38,
		Latitude:   43.37,
		Height:     317,
		Attributes: domain.Attributes{},
	}
	for _, e := range elevations {
		v.AddScan(sweep(t, e, quantity))
	}
	return v
}

// writeRaw creates a raw capture file named name under dir.
func writeRaw(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(rawHeader+"<sensorinfo/>"), 0o644))
	return p
}

// writeArchive creates a placeholder archive file; its members come from fakeArchives.
func writeArchive(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("tar.gz placeholder"), 0o644))
	return p
}

func rawMember(name string) fakeMember {
	return fakeMember{name: name, data: []byte(rawHeader + "<data/>")}
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}
