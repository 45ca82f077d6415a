package qcorpus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Pipeline orchestrates a corpus run: load inputs, deduplicate, analyze
// and optionally archive.
type Pipeline struct {
	cfg      Config
	parser   *QuestionParser
	embedder Embedder
	db       *DB
}

// NewPipeline creates a pipeline. embedder and db may be nil.
func NewPipeline(cfg Config, embedder Embedder, db *DB) *Pipeline {
	if !cfg.Dedup.SemanticEnabled() {
		embedder = nil
	}
	return &Pipeline{
		cfg:      cfg,
		parser:   NewQuestionParser(),
		embedder: embedder,
		db:       db,
	}
}

// LoadFailure is an input item skipped while loading a file.
type LoadFailure struct {
	Path string    `json:"path"`
	Item ItemError `json:"-"`
	Err  string    `json:"error"`
}

// Load reads every input into one corpus, in argument order. A file that
// cannot be read at all fails the load; bad items inside a file do not.
func (p *Pipeline) Load(paths []string) (*Corpus, []LoadFailure, error) {
	var (
		questions []*Question
		failures  []LoadFailure
	)
	for _, path := range paths {
		res, err := LoadFile(path, LoadOptions{Source: p.cfg.Source, Year: p.cfg.Year, Parser: p.parser})
		if err != nil {
			return nil, failures, err
		}
		questions = append(questions, res.Questions...)
		for _, f := range res.Failures {
			failures = append(failures, LoadFailure{Path: path, Item: f, Err: f.Error()})
		}
	}
	return NewCorpus(questions), failures, nil
}

// RunResult is everything a run produced.
type RunResult struct {
	RunID    string
	Corpus   *Corpus
	Dedup    *DedupResult
	Report   *Report
	Failures []LoadFailure
	LogPath  string
}

// Run loads the inputs, deduplicates when dedup is set, analyzes the
// surviving records and archives the run when a database is attached.
func (p *Pipeline) Run(ctx context.Context, paths []string, dedup bool) (*RunResult, error) {
	runID := uuid.NewString()
	logger.Info("starting corpus run", "run", runID, "inputs", len(paths))

	corpus, failures, err := p.Load(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load inputs: %w", err)
	}
	result := &RunResult{RunID: runID, Corpus: corpus, Failures: failures}

	analyzed := corpus
	if dedup {
		var opts []DedupOption
		opts = append(opts, WithThreshold(p.cfg.Dedup.Threshold))
		if p.cfg.RunLogDir != "" {
			runLog, err := NewRunLogger(p.cfg.RunLogDir, runID, RunHeader{
				Inputs:    paths,
				Threshold: p.cfg.Dedup.Threshold,
				Model:     p.cfg.Embedding.Model,
			})
			if err != nil {
				// Continue without the run log rather than failing
				logger.Warn("failed to create run log", "run", runID, "error", err)
			} else {
				defer runLog.Close()
				opts = append(opts, WithRunLogger(runLog))
				result.LogPath = runLog.Path()
			}
		}
		result.Dedup = NewDeduplicator(p.embedder, opts...).Deduplicate(ctx, corpus)
		analyzed = result.Dedup.Unique
	}

	result.Report = NewAnalyzer(analyzed).GenerateReport()

	if p.db != nil {
		if err := p.archive(result, paths); err != nil {
			return result, err
		}
	}

	logger.Info("corpus run complete", "run", runID, "questions", corpus.Len(), "analyzed", analyzed.Len())
	return result, nil
}

func (p *Pipeline) archive(result *RunResult, paths []string) error {
	report, err := json.Marshal(result.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	run := &DBRun{
		ID:              result.RunID,
		CreatedAt:       time.Now(),
		Inputs:          paths,
		TotalQuestions:  result.Corpus.Len(),
		UniqueQuestions: result.Corpus.Len(),
		Threshold:       p.cfg.Dedup.Threshold,
		Report:          string(report),
	}
	unique := result.Corpus
	var pairs []DuplicatePair
	if result.Dedup != nil {
		unique = result.Dedup.Unique
		pairs = result.Dedup.Pairs
		run.UniqueQuestions = unique.Len()
		run.SemanticSkipped = result.Dedup.SemanticSkipped
	}

	if err := p.db.SaveRun(run, result.Corpus.questions, unique, pairs); err != nil {
		return fmt.Errorf("failed to archive run: %w", err)
	}
	logger.Info("run archived", "run", run.ID)
	return nil
}
