package qcorpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const pipelineJSON = `[
  {"id": "q1", "question": "Qual a causa?", "alternatives": ["a", "b", "c", "d"], "answer": "A"},
  {"id": "q2", "question": "Qual a causa?", "alternatives": ["a", "b", "c", "d"], "answer": "A"},
  {"id": "q3", "question": "Qual seria a causa?", "alternatives": ["a", "b", "c", "d"], "answer": "B"},
  {"id": "bad", "question": "x", "answer": "Q"}
]`

const pipelineText = "QUESTÃO 7\nOutro tema\n(A) um (B) dois (C) três (D) quatro\nGabarito: C"

func pipelineInputs(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "batch.json")
	textPath := filepath.Join(dir, "prova.txt")
	if err := os.WriteFile(jsonPath, []byte(pipelineJSON), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(textPath, []byte(pipelineText), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir, []string{jsonPath, textPath}
}

// TestPipelineRun loads mixed inputs, deduplicates, analyzes and
// archives.
func TestPipelineRun(t *testing.T) {
	dir, paths := pipelineInputs(t)
	cfg := Config{Source: "ENARE", Year: 2024, RunLogDir: filepath.Join(dir, "log")}
	NormalizeConfig(&cfg)

	emb := &fakeEmbedder{available: true, vectors: map[string][]float32{
		"Qual a causa?":       {1, 0},
		"Qual seria a causa?": {0.99, 0.1},
		"Outro tema":          {0, 1},
	}}
	db := openTestDB(t)

	result, err := NewPipeline(cfg, emb, db).Run(context.Background(), paths, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Corpus.Len() != 4 || len(result.Failures) != 1 || result.Failures[0].Path != paths[0] {
		t.Fatalf("unexpected load result: %d questions, failures %+v", result.Corpus.Len(), result.Failures)
	}
	if got := ids(result.Dedup.Unique); got != "q1,"+result.Corpus.At(3).ID {
		t.Fatalf("unexpected survivors %s", got)
	}
	if text := result.Corpus.At(3); text.Source != "ENARE" || text.Year != 2024 || text.QuestionNumber != 7 {
		t.Fatalf("expected text input to take configured provenance, got %+v", text)
	}
	if result.Report.Basic.TotalQuestions != 2 {
		t.Fatalf("expected report over survivors, got %d", result.Report.Basic.TotalQuestions)
	}
	if _, err := os.Stat(result.LogPath); err != nil {
		t.Fatalf("expected run log: %v", err)
	}

	run, err := db.GetRun(result.RunID)
	if err != nil {
		t.Fatalf("get archived run: %v", err)
	}
	if run.TotalQuestions != 4 || run.UniqueQuestions != 2 || len(run.Inputs) != 2 {
		t.Fatalf("unexpected archived run %+v", run)
	}
	pairs, err := db.GetDuplicatePairs(result.RunID)
	if err != nil {
		t.Fatalf("get pairs: %v", err)
	}
	if len(pairs) != 2 || pairs[0].Kind != DuplicateExact || pairs[1].Kind != DuplicateSemantic {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
}

// TestPipelineSemanticDisabled checks that the config switch keeps the
// embedder out and that analysis without dedup sees every record.
func TestPipelineSemanticDisabled(t *testing.T) {
	_, paths := pipelineInputs(t)
	off := false
	cfg := Config{Dedup: DedupConfig{Semantic: &off}}
	NormalizeConfig(&cfg)
	cfg.RunLogDir = ""

	emb := &fakeEmbedder{available: true}
	p := NewPipeline(cfg, emb, nil)

	result, err := p.Run(context.Background(), paths, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if emb.calls != 0 || result.Dedup.SemanticSkipped == "" {
		t.Fatalf("expected semantic phase skipped, got %+v", result.Dedup)
	}
	if result.Dedup.Unique.Len() != 3 || result.LogPath != "" {
		t.Fatalf("unexpected result %+v", result)
	}

	plain, err := p.Run(context.Background(), paths, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if plain.Dedup != nil || plain.Report.Basic.TotalQuestions != 4 {
		t.Fatalf("expected undeduplicated analysis, got %+v", plain.Report.Basic)
	}
}

// TestPipelineLoadMissingFile checks that an unreadable input fails the
// run.
func TestPipelineLoadMissingFile(t *testing.T) {
	cfg := Config{}
	NormalizeConfig(&cfg)
	if _, err := NewPipeline(cfg, nil, nil).Run(context.Background(), []string{"/nonexistent/x.json"}, false); err == nil {
		t.Fatalf("expected error for a missing input")
	}
}
