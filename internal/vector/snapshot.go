package vector

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// snapshotFile is the on-disk form of an index snapshot. It is a cache, not
// a source of truth: the store remains authoritative and the snapshot can be
// discarded and rebuilt at any time.
type snapshotFile struct {
	Dimension int
	Entries   []Entry
}

// SaveSnapshot writes the current snapshot to path atomically (write to a
// temp file, then rename).
func (idx *Index) SaveSnapshot(path string) error {
	snap := idx.state.Load()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(snapshotFile{Dimension: snap.dimension, Entries: snap.entries}); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot replaces the current snapshot with one read from path.
// A missing file is not an error; the index stays empty until rebuilt.
func (idx *Index) LoadSnapshot(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	var sf snapshotFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()
	idx.state.Store(&indexSnapshot{entries: sf.Entries, dimension: sf.Dimension})
	return nil
}
