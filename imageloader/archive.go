package imageloader

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// extractFromZIP unpacks every SSF file of a ZIP archive
func extractFromZIP(path string) (afero.Fs, string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	m := newMemFS()
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isSoundFile(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		err = m.add(f.Name, rc)
		rc.Close()
		if err != nil {
			return nil, "", err
		}
	}
	return m.first()
}

// extractFrom7z unpacks every SSF file of a 7z archive
func extractFrom7z(path string) (afero.Fs, string, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open 7z: %w", err)
	}
	defer r.Close()

	m := newMemFS()
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isSoundFile(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		err = m.add(f.Name, rc)
		rc.Close()
		if err != nil {
			return nil, "", err
		}
	}
	return m.first()
}

// extractFromGzip handles both tar.gz sets and a single gzipped track. A
// single track is layered over the directory it came from, so its
// libraries can sit next to it uncompressed.
func extractFromGzip(path string) (afero.Fs, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open gzip: %w", err)
	}
	defer gz.Close()

	br := bufio.NewReader(gz)
	if isTar(br) {
		return extractFromTar(br)
	}

	name := gz.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	data, err := limitedRead(br)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decompress: %w", err)
	}

	layer := afero.NewMemMapFs()
	track := filepath.Join(filepath.Dir(path), filepath.Base(name))
	if err := afero.WriteFile(layer, track, data, 0o644); err != nil {
		return nil, "", err
	}
	base := afero.NewReadOnlyFs(afero.NewOsFs())
	return afero.NewCopyOnWriteFs(base, layer), track, nil
}

// isTar peeks for the ustar magic at offset 257.
func isTar(br *bufio.Reader) bool {
	hdr, _ := br.Peek(262)
	return len(hdr) == 262 && bytes.Equal(hdr[257:262], []byte("ustar"))
}

func extractFromTar(r io.Reader) (afero.Fs, string, error) {
	tr := tar.NewReader(r)
	m := newMemFS()
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg || !isSoundFile(header.Name) {
			continue
		}
		if err := m.add(header.Name, tr); err != nil {
			return nil, "", err
		}
	}
	return m.first()
}
