package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/loomctl/loom/internal/config"
	"github.com/loomctl/loom/internal/ingest"
	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/llm/anthropic"
	"github.com/loomctl/loom/internal/llm/azure"
	"github.com/loomctl/loom/internal/llm/openai"
	"github.com/loomctl/loom/internal/mapping"
	"github.com/loomctl/loom/internal/observability"
	"github.com/loomctl/loom/internal/retrieval"
	"github.com/loomctl/loom/internal/secrets"
	"github.com/loomctl/loom/internal/server"
	"github.com/loomctl/loom/internal/store"
	loomtemporal "github.com/loomctl/loom/internal/temporal"
	"github.com/loomctl/loom/internal/tokens"
	"github.com/loomctl/loom/internal/validate"
	"github.com/loomctl/loom/internal/vector"
	"github.com/loomctl/loom/internal/workflow"
)

const version = "0.1.0"

func loadConfig(configPath string) (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	if configPath == "" {
		if _, err := os.Stat("loom.yaml"); err == nil {
			configPath = "loom.yaml"
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	for _, warning := range cfg.Validate() {
		logger.Warn("config warning", "warning", warning)
	}

	if path := os.Getenv("LOOM_AUDIT_LOG"); path != "" {
		if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
			Enabled:    true,
			OutputPath: path,
		}); err != nil {
			logger.Warn("audit log disabled", "error", err)
		}
	}

	resolveSecrets(cfg, logger)

	return cfg, logger, nil
}

// resolveSecrets fills credentials the config file left empty. The backend
// is selected with LOOM_SECRETS_PROVIDER (file or vault); without one the
// resolver reads LOOM_* and bare environment variables directly.
func resolveSecrets(cfg *config.Config, logger *slog.Logger) {
	var source secrets.Source
	switch backend := os.Getenv("LOOM_SECRETS_PROVIDER"); backend {
	case "file":
		src, err := secrets.NewFileSource(os.Getenv("LOOM_SECRETS_FILE"))
		if err != nil {
			logger.Warn("secrets file unavailable", "error", err)
			return
		}
		source = src
	case "vault":
		src, err := secrets.NewVaultSource(secrets.VaultConfig{
			Address: os.Getenv("LOOM_VAULT_ADDR"),
			Token:   os.Getenv("LOOM_VAULT_TOKEN"),
		})
		if err != nil {
			logger.Warn("vault unavailable", "error", err)
			return
		}
		source = src
	}

	ctx := context.Background()
	resolver := secrets.NewResolver(source)
	resolver.Fill(ctx, secrets.KeyLLMAPIKey, &cfg.LLM.APIKey)
	resolver.Fill(ctx, secrets.KeyGraphPassword, &cfg.Graph.Password)
	resolver.Fill(ctx, secrets.KeyTemporalToken, &cfg.Temporal.APIKey)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// buildProvider creates the configured gateway provider, wrapped with rate
// limiting. Returns nil when the provider is "none".
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	factory := llm.NewFactory()
	factory.Register("azure", func(c llm.ProviderConfig) (llm.Provider, error) {
		return azure.New(c.APIKey, c.BaseURL, c.APIVersion, c.Model, c.EmbedModel)
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	// OpenAI-compatible endpoints
	for _, p := range []struct{ name, url string }{
		{"ollama", llm.KnownProviders["ollama"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}

	provider, err := factory.Create(llm.ProviderConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		EmbedModel: cfg.LLM.EmbedModel,
		APIVersion: cfg.LLM.APIVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider != nil {
		provider = llm.WithOptions(provider, completionDefaults(cfg))
		provider = llm.WithRateLimit(provider, llm.DefaultRateLimitConfig())
	}
	return provider, nil
}

// completionDefaults turns the configured generation knobs into request
// option defaults. Zero values stay unset so provider defaults apply.
func completionDefaults(cfg *config.Config) llm.RequestOptions {
	var opts llm.RequestOptions
	if cfg.LLM.MaxTokens > 0 {
		opts.MaxTokens = &cfg.LLM.MaxTokens
	}
	if cfg.LLM.Temperature > 0 {
		opts.Temperature = &cfg.LLM.Temperature
	}
	return opts
}

// temporalOptions builds client options from config, attaching API key
// credentials for Temporal Cloud when one is set.
func temporalOptions(cfg *config.Config) temporalclient.Options {
	opts := temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	}
	if cfg.Temporal.APIKey != "" {
		opts.Credentials = temporalclient.NewAPIKeyStaticCredentials(cfg.Temporal.APIKey)
	}
	return opts
}

func buildCounter(logger *slog.Logger) tokens.Counter {
	counter, err := tokens.NewTiktokenCounter("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using estimator", "error", err)
		return tokens.NewEstimator()
	}
	return counter
}

// loadAssets reads the component mapping from the configured backend.
func loadAssets(ctx context.Context, cfg *config.Config) (*mapping.Assets, error) {
	if cfg.Graph.Enabled {
		repo, err := mapping.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			return nil, fmt.Errorf("connecting to graph: %w", err)
		}
		defer repo.Close(ctx)

		assets, err := repo.LoadAssets(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading assets from graph: %w", err)
		}
		if assets == nil {
			return nil, fmt.Errorf("graph holds no mapping assets")
		}
		return assets, nil
	}
	return mapping.Load(cfg.Mapping.AssetsPath)
}

// searcherSet bundles the vector backend with its optional local index.
type searcherSet struct {
	searcher  vector.Searcher
	rebuilder server.Rebuilder
	index     *vector.Index // nil for the qdrant backend
	closeFn   func() error
}

type rebuildFunc func(ctx context.Context, reader store.Reader) error

func (f rebuildFunc) Rebuild(ctx context.Context, reader store.Reader) error { return f(ctx, reader) }

// buildSearcher selects the vector backend. The memory backend loads its
// snapshot when configured and falls back to a store rebuild when empty.
func buildSearcher(ctx context.Context, cfg *config.Config, st store.Reader, logger *slog.Logger) (*searcherSet, error) {
	if cfg.Vector.Backend == "qdrant" {
		q, err := vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		return &searcherSet{
			searcher:  q,
			rebuilder: rebuildFunc(q.Sync),
			closeFn:   q.Close,
		}, nil
	}

	idx := vector.NewIndex()
	if cfg.Vector.SnapshotPath != "" {
		if err := idx.LoadSnapshot(cfg.Vector.SnapshotPath); err != nil {
			logger.Warn("index snapshot unreadable, rebuilding from store", "error", err)
		}
	}
	if idx.Len() == 0 {
		if err := idx.Rebuild(ctx, st); err != nil {
			return nil, fmt.Errorf("building index: %w", err)
		}
	}
	logger.Info("vector index ready", "entries", idx.Len())

	return &searcherSet{searcher: idx, rebuilder: idx, index: idx}, nil
}

// temporalMigrator routes migrations through a Temporal workflow instead of
// the in-process engine.
type temporalMigrator struct {
	client    temporalclient.Client
	taskQueue string
}

func (m *temporalMigrator) Run(ctx context.Context, req workflow.Request) (*workflow.Outcome, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: empty code", workflow.ErrInvalidRequest)
	}

	out, err := loomtemporal.ExecuteMigration(ctx, m.client, m.taskQueue, loomtemporal.MigrationInput{
		Code:        req.Code,
		SourceRepo:  req.SourceRepo,
		TargetRepo:  req.TargetRepo,
		TokenBudget: req.TokenBudget,
	})
	if err != nil {
		return nil, err
	}

	outcome := &workflow.Outcome{
		Status:      workflow.Status(out.Status),
		Candidate:   out.Candidate,
		Attempts:    out.Attempts,
		Reason:      out.Reason,
		Issues:      out.Issues,
		ContextText: out.ContextText,
	}
	if out.Status == loomtemporal.StatusMigrated {
		outcome.Stage = workflow.StageDone
	} else {
		outcome.Stage = workflow.StageFailed
	}
	return outcome, nil
}

func runServe(configPath, addrOverride string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingCfg := observability.DefaultTracingConfig()
	tracingCfg.ServiceVersion = version
	tracingCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	tp, err := observability.InitTracing(ctx, tracingCfg)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	if provider == nil {
		logger.Warn("no LLM provider configured; retrieval and migration will fail")
	} else {
		logger.Info("llm provider ready", "provider", provider.Name())
	}

	assets, err := loadAssets(ctx, cfg)
	if err != nil {
		return err
	}

	searchers, err := buildSearcher(ctx, cfg, st, logger)
	if err != nil {
		return err
	}

	svc := retrieval.NewService(provider, searchers.searcher, st, logger)
	validator := validate.NewRuleValidator(assets)
	engine := workflow.NewEngine(svc, provider, validator, assets, workflow.Config{
		MaxGenerationRetries: cfg.Workflow.MaxGenerationRetries,
		MaxRefinements:       cfg.Workflow.MaxRefinements,
		MaxConcurrent:        cfg.Workflow.MaxConcurrent,
		TokenBudget:          cfg.Retrieval.TokenBudget,
	}, logger)

	var migrator server.Migrator = engine
	var tclient temporalclient.Client
	if cfg.Temporal.Enabled {
		tclient, err = temporalclient.Dial(temporalOptions(cfg))
		if err != nil {
			return fmt.Errorf("temporal client: %w", err)
		}
		migrator = &temporalMigrator{client: tclient, taskQueue: cfg.Temporal.TaskQueue}
		logger.Info("migrations routed through temporal", "task_queue", cfg.Temporal.TaskQueue)
	}

	health := server.NewHealth(version)
	health.AddProbe("store", server.StoreProbe(func(ctx context.Context) error {
		_, err := st.Get(ctx, "health-probe")
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}))
	if searchers.index != nil {
		health.AddProbe("index", server.IndexProbe(searchers.index.Len))
	}
	if provider != nil {
		health.AddProbe("llm", server.ProviderProbe(provider.Name()))
	}
	if tclient != nil {
		health.AddProbe("temporal", server.TemporalProbe(func(ctx context.Context) error {
			_, err := tclient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
			return err
		}))
	}
	health.SetReady(true)

	api := server.NewAPI(server.APIConfig{
		Retriever:  svc,
		Migrator:   migrator,
		Rebuilder:  searchers.rebuilder,
		Reader:     st,
		Assets:     assets,
		Health:     health,
		Counter:    buildCounter(logger),
		SourceRepo: cfg.Mapping.SourceRepo,
		TargetRepo: cfg.Mapping.TargetRepo,
		Logger:     logger,
	})

	td := server.NewTeardown(cfg.Server.ShutdownTimeout, logger)
	td.Step("api", func(context.Context) error {
		health.SetReady(false)
		cancel()
		return nil
	})
	if searchers.index != nil && cfg.Vector.SnapshotPath != "" {
		td.Step("index-snapshot", func(context.Context) error {
			return searchers.index.SaveSnapshot(cfg.Vector.SnapshotPath)
		})
	}
	if tp != nil {
		td.Step("tracing", tp.Shutdown)
	}
	td.Step("stores", func(context.Context) error {
		if searchers.closeFn != nil {
			searchers.closeFn()
		}
		if tclient != nil {
			tclient.Close()
		}
		return st.Close()
	})
	td.Arm()

	err = api.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	td.Trigger()
	td.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runIngest(configPath, dir, repo string, force bool) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	if provider == nil {
		return fmt.Errorf("ingestion requires an embedding provider; configure llm.provider")
	}

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	chunker := ingest.NewChunker(ingest.DefaultChunkSize, ingest.DefaultOverlap)
	loader := ingest.NewLoader(st, provider, buildCounter(logger), chunker, logger)

	// Ingest state lives next to the store so repeated runs against the
	// same database skip unchanged documents.
	stateDir := filepath.Dir(cfg.Store.Path)

	start := time.Now()
	ctx, endSpan := observability.TraceIngest(ctx, repo)
	report, err := loader.LoadDirIncremental(ctx, dir, repo, stateDir, force)
	if err != nil {
		endSpan(0, err)
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}
	endSpan(report.RecordsWritten, nil)
	observability.Audit().LogIngest(ctx, repo, report.RecordsWritten, time.Since(start))
	fmt.Printf("Ingested %d records from %s (%d documents, %d unchanged skipped)\n",
		report.RecordsWritten, dir, report.TotalDocuments, report.Skipped)
	for _, key := range report.Removed {
		fmt.Printf("Removed since last run (records retained): %s\n", key)
	}

	if !report.NeedsLoad() && !report.FirstRun {
		return nil
	}

	// Refresh the snapshot so serve starts from the new records.
	if cfg.Vector.Backend != "qdrant" && cfg.Vector.SnapshotPath != "" {
		idx := vector.NewIndex()
		if err := idx.Rebuild(ctx, st); err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
		if err := idx.SaveSnapshot(cfg.Vector.SnapshotPath); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
		fmt.Printf("Index snapshot written to %s (%d entries)\n", cfg.Vector.SnapshotPath, idx.Len())
	}
	return nil
}

func runIndexRebuild(configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	start := time.Now()

	if cfg.Vector.Backend == "qdrant" {
		q, err := vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			return fmt.Errorf("connecting to qdrant: %w", err)
		}
		defer q.Close()

		err = q.Sync(ctx, st)
		observability.Audit().LogIndexRebuild(ctx, 0, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("syncing qdrant collection: %w", err)
		}
		fmt.Printf("Qdrant collection %s synced\n", cfg.Vector.Collection)
		return nil
	}

	idx := vector.NewIndex()
	err = idx.Rebuild(ctx, st)
	observability.Audit().LogIndexRebuild(ctx, idx.Len(), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	if cfg.Vector.SnapshotPath != "" {
		if err := idx.SaveSnapshot(cfg.Vector.SnapshotPath); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}
	logger.Info("index rebuilt", "entries", idx.Len())
	fmt.Printf("Index rebuilt with %d entries\n", idx.Len())
	return nil
}

type retrieveOptions struct {
	Query       string
	Section     string
	Repository  string
	TopK        int
	TokenBudget int
	JSON        bool
}

func runRetrieve(configPath string, opts retrieveOptions) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	if provider == nil {
		return fmt.Errorf("retrieval requires an embedding provider; configure llm.provider")
	}

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	searchers, err := buildSearcher(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	if searchers.closeFn != nil {
		defer searchers.closeFn()
	}

	svc := retrieval.NewService(provider, searchers.searcher, st, logger)

	topK := opts.TopK
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}
	budget := opts.TokenBudget
	if budget <= 0 {
		budget = cfg.Retrieval.TokenBudget
	}

	result, err := svc.Retrieve(ctx, retrieval.Query{
		Text:        opts.Query,
		Section:     store.ParseSection(opts.Section),
		Repository:  opts.Repository,
		TopK:        topK,
		TokenBudget: budget,
	})
	if err != nil {
		return err
	}

	if opts.JSON {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Retrieved %d records (%d tokens)\n\n", len(result.Records), result.TotalTokens)
	for _, rec := range result.Records {
		fmt.Printf("--- %s (score %.3f, %d tokens)\n%s\n\n", rec.ID, rec.Score, rec.TokenCount, rec.Text)
	}
	return nil
}

type migrateOptions struct {
	File        string
	SourceRepo  string
	TargetRepo  string
	TokenBudget int
	JSON        bool
}

func runMigrate(configPath string, opts migrateOptions) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	code, err := readInput(opts.File)
	if err != nil {
		return err
	}

	sourceRepo := opts.SourceRepo
	if sourceRepo == "" {
		sourceRepo = cfg.Mapping.SourceRepo
	}
	targetRepo := opts.TargetRepo
	if targetRepo == "" {
		targetRepo = cfg.Mapping.TargetRepo
	}

	ctx := context.Background()
	req := workflow.Request{
		Code:        code,
		SourceRepo:  sourceRepo,
		TargetRepo:  targetRepo,
		TokenBudget: opts.TokenBudget,
	}

	migrationID := fmt.Sprintf("migration-%d", time.Now().UnixNano())
	observability.Audit().LogMigrationStart(ctx, migrationID, sourceRepo, targetRepo)
	start := time.Now()

	var outcome *workflow.Outcome
	if cfg.Temporal.Enabled {
		tclient, err := temporalclient.Dial(temporalOptions(cfg))
		if err != nil {
			return fmt.Errorf("temporal client: %w", err)
		}
		defer tclient.Close()

		migrator := &temporalMigrator{client: tclient, taskQueue: cfg.Temporal.TaskQueue}
		outcome, err = migrator.Run(ctx, req)
		if err != nil {
			return err
		}
	} else {
		provider, err := buildProvider(cfg)
		if err != nil {
			return err
		}
		if provider == nil {
			return fmt.Errorf("migration requires an LLM provider; configure llm.provider")
		}

		st, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		assets, err := loadAssets(ctx, cfg)
		if err != nil {
			return err
		}

		searchers, err := buildSearcher(ctx, cfg, st, logger)
		if err != nil {
			return err
		}
		if searchers.closeFn != nil {
			defer searchers.closeFn()
		}

		svc := retrieval.NewService(provider, searchers.searcher, st, logger)
		engine := workflow.NewEngine(svc, provider, validate.NewRuleValidator(assets), assets, workflow.Config{
			MaxGenerationRetries: cfg.Workflow.MaxGenerationRetries,
			MaxRefinements:       cfg.Workflow.MaxRefinements,
			MaxConcurrent:        cfg.Workflow.MaxConcurrent,
			TokenBudget:          cfg.Retrieval.TokenBudget,
		}, logger)

		outcome, err = engine.Run(ctx, req)
		if err != nil {
			return err
		}
	}

	observability.Audit().LogMigrationEnd(ctx, migrationID,
		outcome.Status == workflow.StatusMigrated, outcome.Attempts, time.Since(start))

	if opts.JSON {
		data, _ := json.MarshalIndent(outcome, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Status: %s (attempts: %d)\n", outcome.Status, outcome.Attempts)
		if outcome.Reason != "" {
			fmt.Printf("Reason: %s\n", outcome.Reason)
		}
		for _, issue := range outcome.Issues {
			fmt.Printf("  issue: %s\n", issue)
		}
		if outcome.Candidate != "" {
			fmt.Printf("\n%s\n", outcome.Candidate)
		}
	}

	if outcome.Status != workflow.StatusMigrated {
		return fmt.Errorf("migration failed after %d attempts", outcome.Attempts)
	}
	return nil
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func printProviders() {
	fmt.Println("Available LLM providers:")
	fmt.Println()
	for name, url := range llm.KnownProviders {
		fmt.Printf("  %-14s %s\n", name, url)
	}
	fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
	fmt.Println("  none           (run without an LLM; retrieval and migration disabled)")
	fmt.Println()
	fmt.Println("Configure in loom.yaml or via environment:")
	fmt.Println("  LOOM_LLM_PROVIDER=openai")
	fmt.Println("  LOOM_LLM_API_KEY=sk-...")
	fmt.Println("  LOOM_LLM_MODEL=gpt-4o")
	fmt.Println("  LOOM_LLM_EMBED_MODEL=text-embedding-3-large")
}
