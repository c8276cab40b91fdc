package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// artifactStore keeps artifact content on disk under root/<run>/<name>.
type artifactStore struct {
	root string
}

// save copies the produced file into the store and returns the stored path.
func (s *artifactStore) save(runID, name, src string) (string, error) {
	dir := filepath.Join(s.root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening artifact source: %w", err)
	}
	defer in.Close()

	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("creating artifact file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copying artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing artifact file: %w", err)
	}
	return dst, nil
}
