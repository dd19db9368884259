package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Context retrieval and migration orchestration for component library upgrades",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: loom.yaml if present)")

	var serveAddr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the retrieval and migration API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, serveAddr)
		},
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")

	var (
		ingestDir   string
		ingestRepo  string
		ingestForce bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and store documentation from a directory",
		Long: `Ingest walks a documentation tree laid out as component/section files,
chunks and embeds each document, and writes the records to the store.
Runs are incremental: documents unchanged since the previous run are
skipped. Pass --force to re-embed everything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, ingestDir, ingestRepo, ingestForce)
		},
	}
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Documentation directory to ingest")
	ingestCmd.Flags().StringVar(&ingestRepo, "repo", "", "Repository label for ingested records")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Re-embed all documents, ignoring previous ingest state")
	_ = ingestCmd.MarkFlagRequired("dir")
	_ = ingestCmd.MarkFlagRequired("repo")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Vector index operations",
	}
	indexRebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index from the context store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexRebuild(configPath)
		},
	}
	indexCmd.AddCommand(indexRebuildCmd)

	var (
		retrieveQuery   string
		retrieveSection string
		retrieveRepo    string
		retrieveTopK    int
		retrieveBudget  int
		retrieveJSON    bool
	)
	retrieveCmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve context records for a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetrieve(configPath, retrieveOptions{
				Query:       retrieveQuery,
				Section:     retrieveSection,
				Repository:  retrieveRepo,
				TopK:        retrieveTopK,
				TokenBudget: retrieveBudget,
				JSON:        retrieveJSON,
			})
		},
	}
	retrieveCmd.Flags().StringVar(&retrieveQuery, "query", "", "Query text")
	retrieveCmd.Flags().StringVar(&retrieveSection, "section", "", "Restrict to a section (api, props, usage, styling, plan, rules)")
	retrieveCmd.Flags().StringVar(&retrieveRepo, "repo", "", "Restrict to a repository")
	retrieveCmd.Flags().IntVar(&retrieveTopK, "top-k", 0, "Number of records to retrieve")
	retrieveCmd.Flags().IntVar(&retrieveBudget, "budget", 0, "Token budget for assembled context")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "Output result as JSON")
	_ = retrieveCmd.MarkFlagRequired("query")

	var (
		migrateFile   string
		migrateSource string
		migrateTarget string
		migrateBudget int
		migrateJSON   bool
	)
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate a code snippet to the target component library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath, migrateOptions{
				File:        migrateFile,
				SourceRepo:  migrateSource,
				TargetRepo:  migrateTarget,
				TokenBudget: migrateBudget,
				JSON:        migrateJSON,
			})
		},
	}
	migrateCmd.Flags().StringVar(&migrateFile, "file", "", "File holding the code to migrate (- for stdin)")
	migrateCmd.Flags().StringVar(&migrateSource, "source", "", "Source repository (overrides config)")
	migrateCmd.Flags().StringVar(&migrateTarget, "target", "", "Target repository (overrides config)")
	migrateCmd.Flags().IntVar(&migrateBudget, "budget", 0, "Token budget for retrieved context")
	migrateCmd.Flags().BoolVar(&migrateJSON, "json", false, "Output outcome as JSON")
	_ = migrateCmd.MarkFlagRequired("file")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			printProviders()
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, indexCmd, retrieveCmd, migrateCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
