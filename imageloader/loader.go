// Package imageloader loads SSF program images from plain files or from
// archives (ZIP, 7z, gzip, tar.gz, RAR). Archives are unpacked into an
// in-memory filesystem so library references resolve inside them.
package imageloader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/user-none/satsound/psf"
)

// Magic bytes for format detection
var (
	magicZIP    = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEnd = []byte{0x50, 0x4B, 0x05, 0x06} // empty zip
	magic7z     = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip   = []byte{0x1F, 0x8B}
	magicRAR    = []byte{0x52, 0x61, 0x72, 0x21} // "Rar!"
	magicPSF    = []byte("PSF")
)

// Maximum size of any one extracted file (8MB safety limit)
const maxFileSize = 8 * 1024 * 1024

// ErrNoImage is returned when an archive holds no loadable track
var ErrNoImage = errors.New("no .ssf or .minissf file found in archive")

// ErrUnsupportedFormat is returned for unrecognized file formats
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrFileTooLarge is returned when extracted content exceeds size limit
var ErrFileTooLarge = errors.New("file exceeds maximum size limit")

type formatType int

const (
	formatUnknown formatType = iota
	formatRawPSF
	formatZIP
	format7z
	formatGzip
	formatRAR
)

// Result is a loaded track.
type Result struct {
	Image *psf.Image
	File  *psf.File // the track itself, for its tags
	Name  string    // base name of the track, for display
}

// Load reads the track at path, or the first track inside the archive at
// path, and assembles its program image. cache may be nil.
func Load(path string, cache *psf.LibraryCache) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	header := make([]byte, 16)
	n, err := f.Read(header)
	f.Close()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}
	header = header[:n]

	var (
		fs   afero.Fs
		name string
	)
	switch detectFormat(header, path) {
	case formatRawPSF:
		fs, name = afero.NewOsFs(), path
	case formatZIP:
		fs, name, err = extractFromZIP(path)
	case format7z:
		fs, name, err = extractFrom7z(path)
	case formatGzip:
		fs, name, err = extractFromGzip(path)
	case formatRAR:
		fs, name, err = extractFromRAR(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}

	img, file, err := psf.NewLoader(fs, psf.VersionSSF, cache).Load(name)
	if err != nil {
		return nil, err
	}
	return &Result{Image: img, File: file, Name: filepath.Base(name)}, nil
}

// detectFormat determines the file format based on magic bytes and extension
func detectFormat(header []byte, path string) formatType {
	ext := strings.ToLower(filepath.Ext(path))

	// Check magic bytes first (more reliable)
	if len(header) >= 4 {
		if bytes.HasPrefix(header, magicZIP) || bytes.HasPrefix(header, magicZIPEnd) {
			return formatZIP
		}
		if bytes.HasPrefix(header, magicRAR) {
			return formatRAR
		}
		if bytes.HasPrefix(header, magicPSF) {
			return formatRawPSF
		}
	}
	if len(header) >= 6 && bytes.HasPrefix(header, magic7z) {
		return format7z
	}
	if len(header) >= 2 && bytes.HasPrefix(header, magicGzip) {
		return formatGzip
	}

	// Fall back to extension
	switch ext {
	case ".ssf", ".minissf", ".ssflib":
		return formatRawPSF
	case ".zip":
		return formatZIP
	case ".7z":
		return format7z
	case ".gz", ".tgz":
		return formatGzip
	case ".rar":
		return formatRAR
	}
	return formatUnknown
}

// isTrack reports whether name is a playable track (not a library).
func isTrack(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ssf", ".minissf":
		return true
	}
	return false
}

// isSoundFile reports whether name belongs to an SSF set, tracks and
// libraries alike.
func isSoundFile(name string) bool {
	return isTrack(name) || strings.EqualFold(filepath.Ext(name), ".ssflib")
}

// limitedRead reads from r up to maxFileSize bytes, returning an error if exceeded
func limitedRead(r io.Reader) ([]byte, error) {
	lr := io.LimitReader(r, maxFileSize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// memFS collects extracted files and picks the track to load.
type memFS struct {
	fs     afero.Fs
	tracks []string
}

func newMemFS() *memFS {
	return &memFS{fs: afero.NewMemMapFs()}
}

func (m *memFS) add(name string, r io.Reader) error {
	data, err := limitedRead(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	p := filepath.Join("/", filepath.FromSlash(name))
	if err := m.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(m.fs, p, data, 0o644); err != nil {
		return err
	}
	if isTrack(p) {
		m.tracks = append(m.tracks, p)
	}
	return nil
}

// first returns the alphabetically first track.
func (m *memFS) first() (afero.Fs, string, error) {
	if len(m.tracks) == 0 {
		return nil, "", ErrNoImage
	}
	sort.Strings(m.tracks)
	return m.fs, m.tracks[0], nil
}
