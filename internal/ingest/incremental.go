package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	stateVersion  = "1"
	stateFileName = ".loom-ingest.json"
)

// IngestState records what a previous ingestion run saw, keyed by
// repository/component/section. A document whose content hash matches the
// stored fingerprint is skipped on the next run.
type IngestState struct {
	Version      string            `json:"version"`
	LastRun      time.Time         `json:"last_run"`
	Repository   string            `json:"repository"`
	Fingerprints map[string]string `json:"fingerprints"`
}

// NewIngestState creates an empty state for a repository.
func NewIngestState(repository string) *IngestState {
	return &IngestState{
		Version:      stateVersion,
		Repository:   repository,
		Fingerprints: make(map[string]string),
	}
}

// LoadIngestState reads the state file from dir. A missing file means a
// first run and returns nil without error.
func LoadIngestState(dir string) (*IngestState, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state IngestState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing ingest state: %w", err)
	}
	return &state, nil
}

// Save writes the state file into dir, stamping the run time.
func (s *IngestState) Save(dir string) error {
	s.LastRun = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stateFileName), data, 0o644)
}

// docKey identifies a document across runs.
func docKey(doc Document) string {
	return fmt.Sprintf("%s/%s/%s", doc.Repository, doc.Component, doc.Section)
}

// fingerprintText hashes document content for change detection.
func fingerprintText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// IncrementalReport summarizes what an incremental load did.
type IncrementalReport struct {
	TotalDocuments int           `json:"total_documents"`
	Changed        []string      `json:"changed,omitempty"`
	New            []string      `json:"new,omitempty"`
	Removed        []string      `json:"removed,omitempty"`
	Skipped        int           `json:"skipped"`
	RecordsWritten int           `json:"records_written"`
	FirstRun       bool          `json:"first_run"`
	Duration       time.Duration `json:"duration"`
}

// NeedsLoad reports whether any document changed since the last run.
func (r *IncrementalReport) NeedsLoad() bool {
	return len(r.Changed)+len(r.New) > 0
}

// LoadDirIncremental walks the documentation tree like LoadDir but embeds
// and stores only documents whose content changed since the last run.
// State lives in stateDir; force reloads everything regardless of state.
// Removed documents are reported but their stale records stay in the store
// until a full reload.
func (l *Loader) LoadDirIncremental(ctx context.Context, root, repository, stateDir string, force bool) (*IncrementalReport, error) {
	start := time.Now()

	docs, err := walkDocuments(root, repository)
	if err != nil {
		return nil, err
	}

	prev, err := LoadIngestState(stateDir)
	if err != nil {
		return nil, fmt.Errorf("loading ingest state: %w", err)
	}

	report := &IncrementalReport{
		TotalDocuments: len(docs),
		FirstRun:       prev == nil,
	}

	current := make(map[string]string, len(docs))
	var toLoad []Document
	for _, doc := range docs {
		key := docKey(doc)
		hash := fingerprintText(doc.Text)
		current[key] = hash

		if force || prev == nil {
			report.New = append(report.New, key)
			toLoad = append(toLoad, doc)
			continue
		}
		stored, seen := prev.Fingerprints[key]
		switch {
		case !seen:
			report.New = append(report.New, key)
			toLoad = append(toLoad, doc)
		case stored != hash:
			report.Changed = append(report.Changed, key)
			toLoad = append(toLoad, doc)
		default:
			report.Skipped++
		}
	}

	if prev != nil {
		for key := range prev.Fingerprints {
			if _, ok := current[key]; !ok {
				report.Removed = append(report.Removed, key)
			}
		}
	}
	sort.Strings(report.Changed)
	sort.Strings(report.New)
	sort.Strings(report.Removed)

	if len(toLoad) > 0 {
		written, err := l.LoadDocuments(ctx, toLoad)
		if err != nil {
			return nil, err
		}
		report.RecordsWritten = written
	}

	state := NewIngestState(repository)
	state.Fingerprints = current
	if err := state.Save(stateDir); err != nil {
		return nil, fmt.Errorf("saving ingest state: %w", err)
	}

	report.Duration = time.Since(start)
	l.logger.Info("incremental ingest complete",
		"total", report.TotalDocuments,
		"changed", len(report.Changed),
		"new", len(report.New),
		"removed", len(report.Removed),
		"skipped", report.Skipped,
		"records", report.RecordsWritten,
		"first_run", report.FirstRun,
	)
	return report, nil
}
