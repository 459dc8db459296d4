package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"tomato/internal/config"
	"tomato/internal/embedding"
	"tomato/internal/knowledge"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the guideline knowledge base",
}

var kbIngestCmd = &cobra.Command{
	Use:   "ingest [dir or file]",
	Short: "Ingest guideline documents into the knowledge base",
	Long: `Splits markdown, text, and reStructuredText documents into chunks,
embeds each chunk, and stores them for retrieval during review. Re-ingesting
a source replaces its previous chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: runKBIngest,
}

var kbSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKBSearch,
}

var kbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge base contents",
	RunE:  runKBStatus,
}

var searchTopK int

func init() {
	kbSearchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "Number of passages to return")
	kbCmd.AddCommand(kbIngestCmd, kbSearchCmd, kbStatusCmd)
	rootCmd.AddCommand(kbCmd)
}

func openKB() (*knowledge.Store, embedding.Engine, error) {
	dbPath := cfg.Knowledge.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	store, err := knowledge.OpenStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open knowledge base: %w", err)
	}
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("embedding backend: %w", err)
	}
	return store, engine, nil
}

func runKBIngest(cmd *cobra.Command, args []string) error {
	store, engine, err := openKB()
	if err != nil {
		return err
	}
	defer store.Close()

	ingestor := knowledge.NewIngestor(store, engine)
	chunks, err := ingestor.IngestDir(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d chunks from %s\n", chunks, args[0])
	return nil
}

func runKBSearch(cmd *cobra.Command, args []string) error {
	store, engine, err := openKB()
	if err != nil {
		return err
	}
	defer store.Close()

	query := ""
	for i, a := range args {
		if i > 0 {
			query += " "
		}
		query += a
	}

	retriever := knowledge.NewKBRetriever(store, engine, config.Duration(cfg.Knowledge.Timeout, 0))
	passages, err := retriever.Retrieve(cmd.Context(), query, searchTopK)
	if err != nil {
		return err
	}
	if len(passages) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, p := range passages {
		fmt.Printf("%d. [%.3f] %s", i+1, p.Score, p.Source)
		if p.Title != "" {
			fmt.Printf(" - %s", p.Title)
		}
		fmt.Printf("\n   %s\n\n", p.Text)
	}
	return nil
}

func runKBStatus(cmd *cobra.Command, args []string) error {
	dbPath := cfg.Knowledge.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	store, err := knowledge.OpenStore(dbPath)
	if err != nil {
		return fmt.Errorf("open knowledge base: %w", err)
	}
	defer store.Close()

	total, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	sources, err := store.Sources(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Knowledge base: %s\n", dbPath)
	fmt.Printf("Chunks: %d across %d sources\n", total, len(sources))

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s (%d)\n", name, sources[name])
	}
	return nil
}
