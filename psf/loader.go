package psf

import (
	"fmt"
	"hash/crc32"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// MaxLibDepth is how deep _lib references may nest.
const MaxLibDepth = 10

type cacheKey struct {
	crc  uint32
	size int
}

// LibraryCache keeps decoded library files so that a set of tracks sharing
// one driver library inflates it once. Entries are keyed by content, so a
// cache can be shared across filesystems. It is safe for concurrent use.
type LibraryCache struct {
	files *lru.Cache[cacheKey, *File]
}

// NewLibraryCache creates a cache holding up to size files.
func NewLibraryCache(size int) (*LibraryCache, error) {
	c, err := lru.New[cacheKey, *File](size)
	if err != nil {
		return nil, fmt.Errorf("psf: library cache: %w", err)
	}
	return &LibraryCache{files: c}, nil
}

// Len is the number of cached files.
func (c *LibraryCache) Len() int {
	return c.files.Len()
}

// Loader assembles program images from PSF files on a filesystem.
type Loader struct {
	fs      afero.Fs
	version byte
	cache   *LibraryCache
}

// NewLoader reads files of the given version from fs. cache may be nil.
func NewLoader(fs afero.Fs, version byte, cache *LibraryCache) *Loader {
	return &Loader{fs: fs, version: version, cache: cache}
}

// Load reads name and every library it references, merging their
// programs into one image. The returned File is name itself, for its tags.
func (l *Loader) Load(name string) (*Image, *File, error) {
	f, err := l.read(name, false)
	if err != nil {
		return nil, nil, err
	}
	img := &Image{}
	if err := l.apply(img, f, name, 0); err != nil {
		return nil, nil, err
	}
	return img, f, nil
}

// apply merges f into img: its first library, then its own program, then
// the remaining libraries.
func (l *Loader) apply(img *Image, f *File, name string, depth int) error {
	if depth > MaxLibDepth {
		return fmt.Errorf("%w: %s", ErrLibDepth, name)
	}

	libs := f.Tags.Libraries()
	dir := filepath.Dir(name)
	load := func(lib string) error {
		libName := filepath.Join(dir, lib)
		lf, err := l.read(libName, true)
		if err != nil {
			return err
		}
		return l.apply(img, lf, libName, depth+1)
	}

	if len(libs) > 0 {
		if err := load(libs[0]); err != nil {
			return err
		}
	}
	if len(f.Program) > 0 {
		if err := img.Merge(f.Program); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, lib := range libs[min(1, len(libs)):] {
		if err := load(lib); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) read(name string, library bool) (*File, error) {
	data, err := afero.ReadFile(l.fs, name)
	if err != nil {
		return nil, fmt.Errorf("psf: %w", err)
	}

	key := cacheKey{crc: crc32.ChecksumIEEE(data), size: len(data)}
	if library && l.cache != nil {
		if f, ok := l.cache.files.Get(key); ok {
			return f, nil
		}
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if f.Version != l.version {
		return nil, fmt.Errorf("%s: %w: %#02x", name, ErrBadVersion, f.Version)
	}
	if library && l.cache != nil {
		l.cache.files.Add(key, f)
	}
	return f, nil
}
