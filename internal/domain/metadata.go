package domain

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	// RawDataCategory is the file category of decodable raw captures.
	RawDataCategory = "rawdata"

	// ArchiveSuffix is stripped from archive names before splitting.
	ArchiveSuffix = ".tar.gz"

	memberStampLayout  = "20060102150405"
	archiveStampLayout = "200601021504"
	memberStampLen     = len(memberStampLayout)
	archiveStampLen    = len(archiveStampLayout)
	fileVersionLen     = 2
)

// MemberMetadata is decoded from a raw file's path, e.g.
// "rawdata/CASET/Surveillance.vol/2017-06-14/2017061414000300dBZ.vol".
type MemberMetadata struct {
	Path     string
	Dir      string
	BaseName string

	TimestampField string    // YYYYMMDDHHMMSS as written
	Timestamp      time.Time // UTC
	ISO8601        string    // YYYY-MM-DD HH:MM:SS
	FileVersion    string
	QuantitySuffix string
	ScanType       string

	// Directory-derived fields; empty when directory context is ignored.
	Category           string
	Site               string
	SubDataFormat      string
	PreprocessedFormat string
	Date               string
}

// IsRawData reports whether the member holds a decodable raw capture.
func (m MemberMetadata) IsRawData() bool {
	return m.Category == RawDataCategory
}

// Reassemble rebuilds the base name from its positional parts.
func (m MemberMetadata) Reassemble() string {
	return m.TimestampField + m.FileVersion + m.QuantitySuffix + "." + m.ScanType
}

// ParseMemberName decodes an archive member or file path. With ignoreDir the
// directory segments are not interpreted and the category is "rawdata".
func ParseMemberName(p string, ignoreDir bool) (MemberMetadata, error) {
	dir, base := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")

	if len(base) < memberStampLen+fileVersionLen {
		return MemberMetadata{}, fmt.Errorf("parse member name %q: %w: base name shorter than %d characters",
			p, ErrFormatViolation, memberStampLen+fileVersionLen)
	}

	stampField := base[:memberStampLen]
	stamp, err := time.ParseInLocation(memberStampLayout, stampField, time.UTC)
	if err != nil {
		return MemberMetadata{}, fmt.Errorf("parse member name %q: %w: bad timestamp %q",
			p, ErrFormatViolation, stampField)
	}

	dot := strings.IndexByte(base, '.')
	if dot < memberStampLen+fileVersionLen {
		return MemberMetadata{}, fmt.Errorf("parse member name %q: %w: no scan-type suffix",
			p, ErrFormatViolation)
	}

	m := MemberMetadata{
		Path:           p,
		Dir:            dir,
		BaseName:       base,
		TimestampField: stampField,
		Timestamp:      stamp,
		ISO8601:        stamp.Format(time.DateTime),
		FileVersion:    base[memberStampLen : memberStampLen+fileVersionLen],
		QuantitySuffix: base[memberStampLen+fileVersionLen : dot],
		ScanType:       base[dot+1:],
	}

	if ignoreDir {
		m.Category = RawDataCategory
		return m, nil
	}

	segments := strings.Split(dir, "/")
	if dir == "" || len(segments) < 4 {
		return MemberMetadata{}, fmt.Errorf("parse member name %q: %w: need category/site/format/date directories",
			p, ErrFormatViolation)
	}
	n := len(segments)
	m.Date = segments[n-1]
	m.SubDataFormat = segments[n-2]
	m.Site = segments[n-3]
	m.Category = segments[n-4]

	// A format directory that does not end with the scan type names a
	// pre-processed product; the real sub-data-format is only known after decode.
	if !strings.HasSuffix(m.SubDataFormat, m.ScanType) {
		m.PreprocessedFormat = m.SubDataFormat
		m.SubDataFormat = ""
	}

	return m, nil
}

// ArchiveMetadata is decoded from an archive's own name, e.g.
// "CASET_201706141400_Surveillance_vol.tar.gz".
type ArchiveMetadata struct {
	Path     string
	Dir      string
	BaseName string

	Site          string
	StampField    string    // YYYYMMDDHHMM as written
	Timestamp     time.Time // UTC
	ISO8601       string    // YYYY-MM-DD HH:MM:00
	Date          string    // YYYY-MM-DD
	HHMMZ         string    // HHMMZ
	Label         string    // YYYY-MM-DD_HHMMZ
	SubDataFormat string
}

// ParseArchiveName decodes an archive path of the form SITE_YYYYMMDDHHMM_SDF.tar.gz.
func ParseArchiveName(p string) (ArchiveMetadata, error) {
	dir, base := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")

	if !strings.HasSuffix(base, ArchiveSuffix) {
		return ArchiveMetadata{}, fmt.Errorf("parse archive name %q: %w: missing %s suffix",
			p, ErrFormatViolation, ArchiveSuffix)
	}

	fields := strings.Split(strings.TrimSuffix(base, ArchiveSuffix), "_")
	if len(fields) < 2 || fields[0] == "" {
		return ArchiveMetadata{}, fmt.Errorf("parse archive name %q: %w: expected SITE_YYYYMMDDHHMM[_SDF]",
			p, ErrFormatViolation)
	}

	stampField := fields[1]
	if len(stampField) != archiveStampLen {
		return ArchiveMetadata{}, fmt.Errorf("parse archive name %q: %w: timestamp %q is not %d digits",
			p, ErrFormatViolation, stampField, archiveStampLen)
	}
	stamp, err := time.ParseInLocation(archiveStampLayout, stampField, time.UTC)
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("parse archive name %q: %w: bad timestamp %q",
			p, ErrFormatViolation, stampField)
	}

	date := stamp.Format(time.DateOnly)
	hhmmz := stampField[8:12] + "Z"

	return ArchiveMetadata{
		Path:          p,
		Dir:           dir,
		BaseName:      base,
		Site:          fields[0],
		StampField:    stampField,
		Timestamp:     stamp,
		ISO8601:       stamp.Format(time.DateTime),
		Date:          date,
		HHMMZ:         hhmmz,
		Label:         date + "_" + hhmmz,
		SubDataFormat: strings.Join(fields[2:], "_"),
	}, nil
}

// OutputName returns "{site}.{label}.{sdf}.h5".
func (a ArchiveMetadata) OutputName() string {
	return strings.Join([]string{a.Site, a.Label, a.SubDataFormat, "h5"}, ".")
}

// OutputDir returns "{baseDir}/{site}/{date}/{sdf}".
func (a ArchiveMetadata) OutputDir(baseDir string) string {
	return filepath.Join(baseDir, a.Site, a.Date, a.SubDataFormat)
}
