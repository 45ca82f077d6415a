package qcorpus

import "testing"

// TestCorpusIsolation checks that NewCorpus and Questions copy their
// slices and drop nil entries.
func TestCorpusIsolation(t *testing.T) {
	a := NewQuestion(Question{ID: "a", Alternatives: sampleAlternatives()})
	b := NewQuestion(Question{ID: "b"})
	input := []*Question{a, nil, b}

	c := NewCorpus(input)
	input[0] = b
	if c.Len() != 2 || c.At(0).ID != "a" {
		t.Fatalf("expected corpus [a b], got len %d first %s", c.Len(), c.At(0).ID)
	}

	out := c.Questions()
	out[0] = b
	if c.At(0).ID != "a" {
		t.Fatalf("expected Questions to return a copy")
	}
}

// TestCorpusValid checks filtering on the alternative minimum.
func TestCorpusValid(t *testing.T) {
	c := NewCorpus([]*Question{
		NewQuestion(Question{ID: "ok", Alternatives: sampleAlternatives()}),
		NewQuestion(Question{ID: "short", Alternatives: sampleAlternatives()[:2]}),
	})

	valid := c.Valid()
	if valid.Len() != 1 || valid.At(0).ID != "ok" {
		t.Fatalf("expected only the valid record, got %d", valid.Len())
	}
	if c.Len() != 2 {
		t.Fatalf("expected source corpus unchanged")
	}
}
