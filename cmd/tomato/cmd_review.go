package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"tomato/internal/analyzer"
	"tomato/internal/config"
	"tomato/internal/embedding"
	"tomato/internal/knowledge"
	"tomato/internal/llm"
	"tomato/internal/logging"
	"tomato/internal/repair"
	"tomato/internal/report"
	"tomato/internal/review"
	"tomato/internal/verify"
)

var (
	maxIter    int
	miniBatch  int
	noFix      bool
	execFlag   bool
	topK       int
	showReport bool
)

var reviewCmd = &cobra.Command{
	Use:   "review [files or globs...]",
	Short: "Review files and repair their findings iteratively",
	Long: `Runs the diagnose-retrieve-repair-verify loop over each file until it
has no findings or the iteration budget is exhausted. Files are processed
concurrently up to the mini-batch width. With --no-fix, repairs are verified
and reported but never written to disk.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().IntVar(&maxIter, "max-iter", 0, "Iteration budget per file (default from config)")
	reviewCmd.Flags().IntVar(&miniBatch, "mini-batch", 0, "Concurrent file sessions (default from config)")
	reviewCmd.Flags().BoolVar(&noFix, "no-fix", false, "Report findings and candidate fixes without modifying files")
	reviewCmd.Flags().BoolVar(&execFlag, "exec", true, "Execute candidates during verification")
	reviewCmd.Flags().IntVar(&topK, "top-k", 0, "Guideline passages per finding (default from config)")
	reviewCmd.Flags().BoolVar(&showReport, "show-report", false, "Render each file's markdown report after the run")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	paths, err := expandPatterns(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files match %v", args)
	}

	// Flags override config where set.
	if maxIter > 0 {
		cfg.Review.MaxIterations = maxIter
	}
	if miniBatch > 0 {
		cfg.Review.MiniBatch = miniBatch
	}
	if noFix {
		cfg.Review.ReportOnly = true
	}
	if cmd.Flags().Changed("exec") {
		cfg.Verify.Exec = execFlag
	}
	if topK > 0 {
		cfg.Knowledge.TopK = topK
	}

	scheduler, cleanup, err := buildScheduler(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	batch := scheduler.Run(cmd.Context(), paths)
	fmt.Print(report.RenderTerminalSummary(batch))

	if showReport {
		for _, f := range batch.Files {
			if f.ReportPath == "" {
				continue
			}
			data, err := os.ReadFile(f.ReportPath)
			if err != nil {
				continue
			}
			fmt.Print(report.RenderMarkdown(string(data)))
		}
	}

	if !batch.Ok() {
		return fmt.Errorf("%d of %d files failed", batch.Failed, len(batch.Files))
	}
	return nil
}

// buildScheduler wires the full pipeline from configuration. The returned
// cleanup closes the knowledge store.
func buildScheduler(cfg *config.Config) (*review.Scheduler, func(), error) {
	diagnose := buildAnalyzer(cfg)
	retriever, closeStore := buildRetriever(cfg)

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("llm client: %w", err)
	}
	repairer := repair.NewLLMRepairer(client, config.Duration(cfg.LLM.Timeout, 0))

	runner := verify.NewProcessRunner(cfg.Verify.EntryCommands)
	verifier := verify.NewVerifier(runner, diagnose, verify.Options{
		Exec:    cfg.Verify.Exec,
		Timeout: config.Duration(cfg.Verify.Timeout, 0),
	})

	controller := review.NewController(diagnose, retriever, repairer, verifier,
		cfg.Review.MaxIterations, cfg.Knowledge.TopK)

	reportDir := cfg.Review.ReportDir
	if !filepath.IsAbs(reportDir) {
		reportDir = filepath.Join(workspace, reportDir)
	}
	reporter, err := report.NewMarkdownReporter(reportDir)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	scheduler := review.NewScheduler(controller, reporter, workspace,
		cfg.Review.MiniBatch, cfg.Review.ReportOnly)
	return scheduler, closeStore, nil
}

// buildAnalyzer assembles the configured diagnostic sources behind the loop's
// retry-then-degrade wrapper.
func buildAnalyzer(cfg *config.Config) analyzer.Analyzer {
	timeout := config.Duration(cfg.Analyzers.Timeout, 0)

	var sources []analyzer.Analyzer
	for _, c := range cfg.Analyzers.Commands {
		sources = append(sources, analyzer.NewCommandAnalyzer(c.Name, c.Binary, c.Args, timeout))
	}
	if cfg.Analyzers.Structural.Enabled {
		sources = append(sources, analyzer.NewStructuralAnalyzer(analyzer.StructuralOptions{
			MaxFuncLines:   cfg.Analyzers.Structural.MaxFuncLines,
			MaxArguments:   cfg.Analyzers.Structural.MaxArguments,
			WantDocstrings: cfg.Analyzers.Structural.WantDocstrings,
		}))
	}
	return analyzer.NewWithRetry(analyzer.NewMulti(sources...))
}

// buildRetriever opens the KB and embedding backend, degrading to a null
// retriever when either is unavailable: reviews still run, just unguided.
func buildRetriever(cfg *config.Config) (knowledge.Retriever, func()) {
	dbPath := cfg.Knowledge.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}

	store, err := knowledge.OpenStore(dbPath)
	if err != nil {
		logging.KnowledgeWarn("knowledge base unavailable, reviewing without guidance: %v", err)
		return knowledge.NullRetriever{}, func() {}
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		logging.KnowledgeWarn("embedding backend unavailable, reviewing without guidance: %v", err)
		store.Close()
		return knowledge.NullRetriever{}, func() {}
	}

	kb := knowledge.NewKBRetriever(store, engine, config.Duration(cfg.Knowledge.Timeout, 0))
	return knowledge.NewWithRetry(kb), func() { store.Close() }
}

// expandPatterns resolves file arguments and glob patterns to a sorted,
// de-duplicated list of regular files.
func expandPatterns(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string

	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			return nil
		}
		if !seen[abs] {
			seen[abs] = true
			paths = append(paths, abs)
		}
		return nil
	}

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if matches == nil {
			// Not a pattern; treat as a literal path and let Stat decide.
			if _, err := os.Stat(arg); err != nil {
				return nil, fmt.Errorf("no such file: %s", arg)
			}
			matches = []string{arg}
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}
