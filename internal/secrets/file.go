package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
)

// FileSource serves secrets from a flat JSON object on disk, e.g.
//
//	{"llm_api_key": "sk-...", "graph_password": "..."}
//
// It exists for local development where neither Vault nor environment
// injection is set up. The file is read once at construction; loom never
// writes it.
type FileSource struct {
	path   string
	values map[Key]string
}

// NewFileSource loads the secrets file at path. The file should not be
// world-readable; a permissive mode is rejected rather than warned about.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("secrets: file path required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	if mode := info.Mode().Perm(); mode&fs.FileMode(0o044) != 0 {
		return nil, fmt.Errorf("secrets: %s is group/world readable (%04o); tighten to 0600", path, mode)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	values := make(map[Key]string)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("secrets: parsing %s: %w", path, err)
	}

	return &FileSource{path: path, values: values}, nil
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Lookup(_ context.Context, key Key) (string, error) {
	val, ok := s.values[key]
	if !ok || val == "" {
		return "", fmt.Errorf("%w: %s not in %s", ErrNotFound, key, s.path)
	}
	return val, nil
}
