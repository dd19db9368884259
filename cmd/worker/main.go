package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/loomctl/loom/internal/config"
	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/llm/anthropic"
	"github.com/loomctl/loom/internal/llm/azure"
	"github.com/loomctl/loom/internal/llm/openai"
	"github.com/loomctl/loom/internal/mapping"
	"github.com/loomctl/loom/internal/retrieval"
	"github.com/loomctl/loom/internal/store"
	loomtemporal "github.com/loomctl/loom/internal/temporal"
	"github.com/loomctl/loom/internal/validate"
	"github.com/loomctl/loom/internal/vector"
)

func main() {
	_ = godotenv.Load()

	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Build LLM provider via factory.
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
		log.Fatalf("creating LLM provider: %v", err)
	}
	if provider == nil {
		log.Fatal("worker requires an LLM provider; configure llm.provider")
	}

	// Wire option defaults and rate limiter before SetDependencies.
	var opts llm.RequestOptions
	if cfg.LLM.MaxTokens > 0 {
		opts.MaxTokens = &cfg.LLM.MaxTokens
	}
	if cfg.LLM.Temperature > 0 {
		opts.Temperature = &cfg.LLM.Temperature
	}
	provider = llm.WithOptions(provider, opts)
	provider = llm.WithRateLimit(provider, llm.DefaultRateLimitConfig())

	ctx := context.Background()

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	assets, err := mapping.Load(cfg.Mapping.AssetsPath)
	if err != nil {
		log.Fatalf("loading mapping assets: %v", err)
	}

	var searcher vector.Searcher
	if cfg.Vector.Backend == "qdrant" {
		q, err := vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			log.Fatalf("connecting to qdrant: %v", err)
		}
		defer q.Close()
		searcher = q
	} else {
		idx := vector.NewIndex()
		if cfg.Vector.SnapshotPath != "" {
			if err := idx.LoadSnapshot(cfg.Vector.SnapshotPath); err != nil {
				log.Printf("index snapshot unreadable, rebuilding from store: %v", err)
			}
		}
		if idx.Len() == 0 {
			if err := idx.Rebuild(ctx, st); err != nil {
				log.Fatalf("building index: %v", err)
			}
		}
		searcher = idx
	}

	svc := retrieval.NewService(provider, searcher, st, nil)

	loomtemporal.SetDependencies(&loomtemporal.Dependencies{
		Retriever:            svc,
		Provider:             provider,
		Validator:            validate.NewRuleValidator(assets),
		Assets:               assets,
		MaxGenerationRetries: cfg.Workflow.MaxGenerationRetries,
	})

	topts := temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	}
	if cfg.Temporal.APIKey != "" {
		topts.Credentials = temporalclient.NewAPIKeyStaticCredentials(cfg.Temporal.APIKey)
	}
	c, err := temporalclient.Dial(topts)
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := loomtemporal.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	w.Stop()
	fmt.Println("Worker stopped")
}
