package qcorpus

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.CloseDB() })
	if err := db.CreateTables(); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return db
}

// TestSaveRunRoundTrip stores a run and reads back records, pairs and the
// report.
func TestSaveRunRoundTrip(t *testing.T) {
	db := openTestDB(t)

	q1 := NewQuestion(Question{ID: "q1", Source: "ENARE", Year: 2021, Stem: "Qual?",
		Alternatives: alts("a", "b", "c", "d"), CorrectAnswer: "B", Commentary: "porque",
		Metadata: map[string]string{"area": "clinica"}})
	q2 := NewQuestion(Question{ID: "q2", Source: "ENARE", Year: 2021, Stem: "Qual?",
		Alternatives: alts("a", "b", "c", "d")})
	unique := NewCorpus([]*Question{q1})
	pairs := []DuplicatePair{{First: "q2", Second: "q1", Kind: DuplicateExact}}

	report := NewAnalyzer(unique).GenerateReport()
	buf, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	run := &DBRun{
		ID:              "run-1",
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		Inputs:          []string{"a.json"},
		TotalQuestions:  2,
		UniqueQuestions: 1,
		Threshold:       0.85,
		SemanticSkipped: "no embedder available",
		Report:          string(buf),
	}
	if err := db.SaveRun(run, []*Question{q1, q2}, unique, pairs); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.TotalQuestions != 2 || got.Inputs[0] != "a.json" || got.SemanticSkipped != run.SemanticSkipped {
		t.Fatalf("unexpected run %+v", got)
	}
	decoded, err := got.DecodeReport()
	if err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Basic.TotalQuestions != 1 {
		t.Fatalf("unexpected report %+v", decoded.Basic)
	}

	all, err := db.GetRunQuestions("run-1", false)
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(all) != 2 || all[0].ID != "q1" || all[1].ID != "q2" {
		t.Fatalf("unexpected questions %+v", all)
	}
	if all[0].ContentHash() != q1.ContentHash() || all[0].Metadata["area"] != "clinica" || all[0].Commentary != "porque" {
		t.Fatalf("record did not round trip: %+v", all[0])
	}
	if letters := all[0].Alternatives.Letters(); len(letters) != 4 || letters[3] != "D" {
		t.Fatalf("unexpected alternatives %v", letters)
	}

	kept, err := db.GetRunQuestions("run-1", true)
	if err != nil {
		t.Fatalf("get unique questions: %v", err)
	}
	if len(kept) != 1 || kept[0].ID != "q1" {
		t.Fatalf("unexpected unique questions %+v", kept)
	}

	gotPairs, err := db.GetDuplicatePairs("run-1")
	if err != nil {
		t.Fatalf("get pairs: %v", err)
	}
	if len(gotPairs) != 1 || gotPairs[0] != pairs[0] {
		t.Fatalf("unexpected pairs %+v", gotPairs)
	}
}

// TestGetRunsNewestFirst checks ordering, limits and missing runs.
func TestGetRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		run := &DBRun{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour), Report: "{}"}
		if err := db.SaveRun(run, nil, nil, nil); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	runs, err := db.GetRuns(2)
	if err != nil {
		t.Fatalf("get runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("unexpected runs %+v", runs)
	}

	if _, err := db.GetRun("missing"); err == nil {
		t.Fatalf("expected error for a missing run")
	}
}
