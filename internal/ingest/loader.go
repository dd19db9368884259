package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/store"
	"github.com/loomctl/loom/internal/tokens"
)

const (
	// embedBatchSize is how many chunks go to the gateway per embedding call.
	embedBatchSize = 16
	// defaultConcurrency bounds in-flight embedding calls.
	defaultConcurrency = 4
)

// Document is one section of one component's reference material, not yet
// chunked or embedded.
type Document struct {
	Repository string
	Component  string
	Section    store.Section
	Text       string
}

// Loader turns documents into embedded, token-counted records.
type Loader struct {
	writer      store.Writer
	provider    llm.Provider
	counter     tokens.Counter
	chunker     Chunker
	concurrency int
	logger      *slog.Logger
}

// NewLoader wires an ingestion loader.
func NewLoader(writer store.Writer, provider llm.Provider, counter tokens.Counter, chunker Chunker, logger *slog.Logger) *Loader {
	if counter == nil {
		counter = tokens.NewEstimator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		writer:      writer,
		provider:    provider,
		counter:     counter,
		chunker:     chunker,
		concurrency: defaultConcurrency,
		logger:      logger,
	}
}

// LoadDocuments chunks, embeds, and stores the given documents. It returns
// the number of records written. Embedding batches run concurrently; any
// batch failure aborts the whole load before anything is written, so a
// partial failure never leaves half a component behind.
func (l *Loader) LoadDocuments(ctx context.Context, docs []Document) (int, error) {
	records := l.chunkAll(docs)
	if len(records) == 0 {
		return 0, nil
	}

	if err := l.embedAll(ctx, records); err != nil {
		return 0, err
	}

	if err := l.writer.PutBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("storing records: %w", err)
	}
	l.logger.Info("ingested records", "count", len(records))
	return len(records), nil
}

// chunkAll expands documents into records with deterministic IDs. The ID
// layout, repo/component/section/seq, is what component-oriented retrieval
// matches against.
func (l *Loader) chunkAll(docs []Document) []store.Record {
	var records []store.Record
	for _, doc := range docs {
		chunks := l.chunker.Split(string(doc.Section), doc.Text)
		for i, chunk := range chunks {
			records = append(records, store.Record{
				ID:         fmt.Sprintf("%s/%s/%s/%03d", doc.Repository, doc.Component, doc.Section, i),
				Repository: doc.Repository,
				Section:    doc.Section,
				Text:       chunk,
				TokenCount: l.counter.Count(chunk),
			})
		}
	}
	return records
}

// embedAll fills in record embeddings, batching calls to the gateway.
func (l *Loader) embedAll(ctx context.Context, records []store.Record) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for start := 0; start < len(records); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Text
			}
			vecs, err := l.provider.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("embedding batch: %w", err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedding batch: got %d vectors for %d texts", len(vecs), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}

	return g.Wait()
}

// LoadDir walks a documentation tree laid out as component/section files,
// e.g. docs/modus-alert/usage.md, and ingests everything under it. File
// names map to sections; unknown names land in the unknown section rather
// than being dropped.
func (l *Loader) LoadDir(ctx context.Context, root, repository string) (int, error) {
	docs, err := walkDocuments(root, repository)
	if err != nil {
		return 0, err
	}
	return l.LoadDocuments(ctx, docs)
}

// walkDocuments collects documents from a component/section documentation
// tree without ingesting them.
func walkDocuments(root, repository string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		component := filepath.Dir(rel)
		if component == "." {
			// Top-level files carry repository-wide guidance.
			component = repository
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		docs = append(docs, Document{
			Repository: repository,
			Component:  component,
			Section:    store.ParseSection(name),
			Text:       string(data),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return docs, nil
}
