// Package archive reads tar.gz archives member by member.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/radar-merge-service/internal/pipeline"
)

// Opener opens tar.gz archives from the local filesystem.
// It implements pipeline.ArchiveOpener.
type Opener struct{}

// NewOpener returns an Opener.
func NewOpener() *Opener { return &Opener{} }

// Open prepares path for sequential member reads.
func (o *Opener) Open(path string) (pipeline.ArchiveReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	return &Reader{file: f, gz: zr, tr: tar.NewReader(zr)}, nil
}

// Reader walks the regular-file members of one archive in stored order.
type Reader struct {
	file    *os.File
	gz      *gzip.Reader
	tr      *tar.Reader
	current *tar.Header
	read    bool
}

// Next advances to the next regular file. Directories, links and other
// entries are passed over. Returns io.EOF after the last member.
func (r *Reader) Next() (pipeline.Member, error) {
	for {
		hdr, err := r.tr.Next()
		if err != nil {
			r.current = nil
			if errors.Is(err, io.EOF) {
				return pipeline.Member{}, io.EOF
			}
			return pipeline.Member{}, fmt.Errorf("tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		r.current = hdr
		r.read = false
		return pipeline.Member{Name: hdr.Name, Size: hdr.Size}, nil
	}
}

// Read returns the whole content of the current member. It may be called
// once per member.
func (r *Reader) Read() ([]byte, error) {
	if r.current == nil {
		return nil, errors.New("tar: no current member")
	}
	if r.read {
		return nil, fmt.Errorf("tar: member %s already read", r.current.Name)
	}
	r.read = true

	var buf bytes.Buffer
	buf.Grow(int(r.current.Size))
	if _, err := buf.ReadFrom(r.tr); err != nil {
		return nil, fmt.Errorf("tar: read %s: %w", r.current.Name, err)
	}
	return buf.Bytes(), nil
}

// Close releases the gzip stream and the file.
func (r *Reader) Close() error {
	return errors.Join(r.gz.Close(), r.file.Close())
}
