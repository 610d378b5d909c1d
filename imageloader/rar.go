package imageloader

import (
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"
	"github.com/spf13/afero"
)

// extractFromRAR unpacks every SSF file of a RAR archive
func extractFromRAR(path string) (afero.Fs, string, error) {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open rar: %w", err)
	}
	defer r.Close()

	m := newMemFS()
	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read rar entry: %w", err)
		}

		if header.IsDir || !isSoundFile(header.Name) {
			continue
		}
		if err := m.add(header.Name, r); err != nil {
			return nil, "", err
		}
	}
	return m.first()
}
