package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"qcorpus"

	"github.com/alecthomas/kong"
)

// Globals are flags shared by every command.
type Globals struct {
	Config  string `name:"config" short:"c" help:"YAML config file" type:"path"`
	DB      string `name:"db" help:"SQLite archive path (overrides config)" type:"path"`
	Source  string `name:"source" help:"Exam source for inputs that do not state it"`
	Year    int    `name:"year" help:"Exam year for inputs that do not state it"`
	Verbose bool   `name:"verbose" short:"v" help:"Enable verbose output"`
}

var CLI struct {
	Globals

	Parse   ParseCmd   `cmd:"" help:"Parse inputs into question records"`
	Dedup   DedupCmd   `cmd:"" help:"Remove exact and near-duplicate questions"`
	Analyze AnalyzeCmd `cmd:"" help:"Generate the corpus statistics report"`
	Runs    RunsGroup  `cmd:"" help:"Archived runs"`
}

// RunsGroup contains archive queries.
type RunsGroup struct {
	List RunsListCmd `cmd:"" help:"List archived runs"`
	Show RunsShowCmd `cmd:"" help:"Print the report of an archived run"`
}

// config loads the config file and applies flag overrides.
func (g *Globals) config() (qcorpus.Config, error) {
	cfg, err := qcorpus.LoadConfig(g.Config)
	if err != nil {
		return qcorpus.Config{}, err
	}
	if g.DB != "" {
		cfg.Database = g.DB
	}
	if g.Source != "" {
		cfg.Source = g.Source
	}
	if g.Year != 0 {
		cfg.Year = g.Year
	}

	level := cfg.Log.Level
	if g.Verbose {
		level = "debug"
	}
	qcorpus.InitLogging(os.Stderr, level, cfg.Log.Format)
	qcorpus.SetVerbose(g.Verbose)
	return cfg, nil
}

func openArchive(path string) (*qcorpus.DB, error) {
	db, err := qcorpus.OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.CreateTables(); err != nil {
		db.CloseDB()
		return nil, err
	}
	return db, nil
}

func writeJSON(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func reportFailures(failures []qcorpus.LoadFailure) {
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", f.Path, f.Err)
	}
}

// ParseCmd parses inputs and prints the records.
type ParseCmd struct {
	Inputs []string `arg:"" help:"Input files (.txt, .md, .pdf, .json, .csv, optionally .xz)" type:"existingfile"`
	Output string   `name:"output" short:"o" help:"Output file (default: stdout)"`
	Valid  bool     `name:"valid" help:"Only keep records with at least four alternatives"`
}

func (c *ParseCmd) Run(g *Globals) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	corpus, failures, err := qcorpus.NewPipeline(cfg, nil, nil).Load(c.Inputs)
	if err != nil {
		return err
	}
	reportFailures(failures)
	if c.Valid {
		corpus = corpus.Valid()
	}
	return writeJSON(c.Output, corpus.Questions())
}

// DedupCmd removes duplicates and prints the survivors and pairs.
type DedupCmd struct {
	Inputs     []string      `arg:"" help:"Input files" type:"existingfile"`
	Output     string        `name:"output" short:"o" help:"Output file (default: stdout)"`
	Threshold  float64       `name:"threshold" help:"Cosine similarity threshold (overrides config)"`
	NoSemantic bool          `name:"no-semantic" help:"Only remove exact duplicates"`
	Timeout    time.Duration `name:"timeout" default:"5m" help:"Embedding call timeout"`
}

// config applies the threshold override and validates the result.
func (c *DedupCmd) config(g *Globals) (qcorpus.Config, error) {
	cfg, err := g.config()
	if err != nil {
		return qcorpus.Config{}, err
	}
	if c.Threshold != 0 {
		cfg.Dedup.Threshold = c.Threshold
	}
	if err := qcorpus.ValidateConfig(cfg); err != nil {
		return qcorpus.Config{}, err
	}
	return cfg, nil
}

func (c *DedupCmd) Run(g *Globals) error {
	cfg, err := c.config(g)
	if err != nil {
		return err
	}

	corpus, failures, err := qcorpus.NewPipeline(cfg, nil, nil).Load(c.Inputs)
	if err != nil {
		return err
	}
	reportFailures(failures)

	var embedder qcorpus.Embedder
	if !c.NoSemantic && cfg.Dedup.SemanticEnabled() {
		embedder = qcorpus.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, c.Timeout)
	defer cancelTimeout()

	result := qcorpus.NewDeduplicator(embedder, qcorpus.WithThreshold(cfg.Dedup.Threshold)).Deduplicate(ctx, corpus)
	return writeJSON(c.Output, struct {
		Unique []*qcorpus.Question `json:"unique"`
		*qcorpus.DedupResult
	}{result.Unique.Questions(), result})
}

// AnalyzeCmd runs the full pipeline and prints the report.
type AnalyzeCmd struct {
	Inputs  []string      `arg:"" help:"Input files" type:"existingfile"`
	Output  string        `name:"output" short:"o" help:"Report file (default: stdout)"`
	Dedup   bool          `name:"dedup" help:"Deduplicate before analyzing"`
	Archive bool          `name:"archive" help:"Store the run in the SQLite archive"`
	Timeout time.Duration `name:"timeout" default:"10m" help:"Overall run timeout"`
}

func (c *AnalyzeCmd) Run(g *Globals) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}

	var db *qcorpus.DB
	if c.Archive {
		if cfg.Database == "" {
			return fmt.Errorf("--archive needs a database: set --db, %s or database in the config", qcorpus.EnvDatabase)
		}
		if db, err = openArchive(cfg.Database); err != nil {
			return err
		}
		defer db.CloseDB()
	}

	embedder := qcorpus.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model)
	pipeline := qcorpus.NewPipeline(cfg, embedder, db)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, c.Timeout)
	defer cancelTimeout()

	result, err := pipeline.Run(ctx, c.Inputs, c.Dedup)
	if err != nil {
		return err
	}
	reportFailures(result.Failures)
	if c.Archive {
		fmt.Fprintf(os.Stderr, "archived run %s\n", result.RunID)
	}
	return writeJSON(c.Output, result.Report)
}

// RunsListCmd lists archived runs.
type RunsListCmd struct {
	Limit int `name:"limit" default:"20" help:"Maximum number of runs"`
}

func (c *RunsListCmd) Run(g *Globals) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	if cfg.Database == "" {
		return fmt.Errorf("no database configured")
	}
	db, err := openArchive(cfg.Database)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	runs, err := db.GetRuns(c.Limit)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d runs\n", len(runs))
	for _, run := range runs {
		fmt.Printf("  %s  %s  %d questions, %d unique\n",
			run.ID, run.CreatedAt.Format(time.RFC3339), run.TotalQuestions, run.UniqueQuestions)
	}
	return nil
}

// RunsShowCmd prints an archived report.
type RunsShowCmd struct {
	ID     string `arg:"" help:"Run ID"`
	Output string `name:"output" short:"o" help:"Report file (default: stdout)"`
}

func (c *RunsShowCmd) Run(g *Globals) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	if cfg.Database == "" {
		return fmt.Errorf("no database configured")
	}
	db, err := openArchive(cfg.Database)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	run, err := db.GetRun(c.ID)
	if err != nil {
		return err
	}
	report, err := run.DecodeReport()
	if err != nil {
		return err
	}
	return writeJSON(c.Output, report)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("qcorpus"),
		kong.Description("Exam question corpus ingestion, deduplication and statistics"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
