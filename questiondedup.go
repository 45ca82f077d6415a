package qcorpus

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultSimilarityThreshold is the cosine similarity above which two
// stems are treated as the same question.
const DefaultSimilarityThreshold = 0.85

// Deduplicator removes exact duplicates by content hash and, when an
// embedder is available, near duplicates by stem similarity.
//
// The semantic phase builds a full n×n similarity matrix over the exact
// survivors, so time and memory grow quadratically: a few thousand
// records is the practical ceiling.
type Deduplicator struct {
	embedder  Embedder
	threshold float64
	runLog    *RunLogger
}

// DedupOption configures a Deduplicator.
type DedupOption func(*Deduplicator)

// WithThreshold sets the similarity threshold.
func WithThreshold(threshold float64) DedupOption {
	return func(d *Deduplicator) { d.threshold = threshold }
}

// WithRunLogger records every decision in a run log.
func WithRunLogger(l *RunLogger) DedupOption {
	return func(d *Deduplicator) { d.runLog = l }
}

// NewDeduplicator creates a deduplicator. embedder may be nil, which
// limits it to exact matching.
func NewDeduplicator(embedder Embedder, opts ...DedupOption) *Deduplicator {
	d := &Deduplicator{embedder: embedder, threshold: DefaultSimilarityThreshold}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DedupResult is the reduced corpus and the duplicate pairs found, exact
// pairs first.
type DedupResult struct {
	Unique             *Corpus         `json:"-"`
	Pairs              []DuplicatePair `json:"pairs"`
	ExactDuplicates    int             `json:"exact_duplicates"`
	SemanticDuplicates int             `json:"semantic_duplicates"`
	SemanticSkipped    string          `json:"semantic_skipped,omitempty"`
}

var errEmbedderUnavailable = errors.New("no embedder available")

// Deduplicate runs the exact phase and then, if possible, the semantic
// phase. It never fails: when embeddings cannot be obtained the exact
// result is returned and the reason recorded in SemanticSkipped.
func (d *Deduplicator) Deduplicate(ctx context.Context, corpus *Corpus) *DedupResult {
	unique, exact := exactDuplicates(corpus.questions)
	logger.Info("exact duplicates removed", "count", len(exact))
	d.logPairs(exact)

	result := &DedupResult{
		Pairs:           exact,
		ExactDuplicates: len(exact),
	}

	kept, semantic, err := d.semanticDuplicates(ctx, unique)
	if err != nil {
		logger.Warn("semantic dedup skipped", "error", err)
		if d.runLog != nil {
			d.runLog.Logf("Semantic dedup skipped: %v\n", err)
		}
		result.SemanticSkipped = err.Error()
		kept = unique
	} else {
		logger.Info("semantic near-duplicates removed", "count", len(semantic))
		d.logPairs(semantic)
		result.Pairs = append(result.Pairs, semantic...)
		result.SemanticDuplicates = len(semantic)
	}

	result.Unique = NewCorpus(kept)
	logger.Info("final corpus", "unique", result.Unique.Len())
	return result
}

func (d *Deduplicator) logPairs(pairs []DuplicatePair) {
	if d.runLog == nil {
		return
	}
	for _, p := range pairs {
		d.runLog.LogDuplicate(p)
	}
}

// exactDuplicates keeps the first record of every content hash, in order.
func exactDuplicates(questions []*Question) ([]*Question, []DuplicatePair) {
	seen := make(map[string]string, len(questions))
	var (
		unique []*Question
		pairs  []DuplicatePair
	)
	for _, q := range questions {
		if firstID, ok := seen[q.hash]; ok {
			pairs = append(pairs, DuplicatePair{First: q.ID, Second: firstID, Kind: DuplicateExact})
			continue
		}
		seen[q.hash] = q.ID
		unique = append(unique, q)
	}
	return unique, pairs
}

// semanticDuplicates embeds every stem in one call and collapses near
// duplicates onto the earliest record.
func (d *Deduplicator) semanticDuplicates(ctx context.Context, questions []*Question) ([]*Question, []DuplicatePair, error) {
	if d.embedder == nil || !d.embedder.Available() {
		return nil, nil, errEmbedderUnavailable
	}
	if len(questions) < 2 {
		return questions, nil, nil
	}

	stems := make([]string, len(questions))
	for i, q := range questions {
		stems[i] = q.Stem
	}
	if d.runLog != nil {
		d.runLog.LogEmbeddingRequest(len(stems))
	}
	vectors, err := d.embedder.Embed(ctx, stems)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding failed: %w", err)
	}
	if err := checkEmbeddings(vectors, len(stems)); err != nil {
		return nil, nil, err
	}
	if d.runLog != nil {
		d.runLog.LogEmbeddingResponse(len(vectors), len(vectors[0]))
	}

	sim := cosineSimilarityMatrix(vectors)
	removed, links := collapseSimilar(sim, d.threshold)

	kept := make([]*Question, 0, len(questions))
	for i, q := range questions {
		if !removed[i] {
			kept = append(kept, q)
		}
	}
	pairs := make([]DuplicatePair, len(links))
	for k, l := range links {
		pairs[k] = DuplicatePair{
			First:      questions[l.anchor].ID,
			Second:     questions[l.removed].ID,
			Kind:       DuplicateSemantic,
			Similarity: sim.At(l.anchor, l.removed),
		}
	}
	return kept, pairs, nil
}

func checkEmbeddings(vectors [][]float32, n int) error {
	if len(vectors) != n {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), n)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return errors.New("embedder returned empty vectors")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(v), dim)
		}
	}
	return nil
}

// cosineSimilarityMatrix returns the symmetric matrix of pairwise cosine
// similarities. Zero vectors are similar to nothing.
func cosineSimilarityMatrix(vectors [][]float32) *mat.SymDense {
	n := len(vectors)
	rows := make([][]float64, n)
	norms := make([]float64, n)
	for i, v := range vectors {
		row := make([]float64, len(v))
		for k, x := range v {
			row[k] = float64(x)
		}
		rows[i] = row
		norms[i] = floats.Norm(row, 2)
	}

	sim := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if norms[i] == 0 || norms[j] == 0 {
				continue
			}
			sim.SetSym(i, j, floats.Dot(rows[i], rows[j])/(norms[i]*norms[j]))
		}
	}
	return sim
}

type similarLink struct {
	anchor, removed int
}

// collapseSimilar walks anchors in ascending order and removes every
// later record more similar than threshold to a live anchor. A removed
// record never becomes an anchor, so chains collapse onto their earliest
// member without checking the other pairs of the chain.
func collapseSimilar(sim mat.Symmetric, threshold float64) ([]bool, []similarLink) {
	n := sim.SymmetricDim()
	removed := make([]bool, n)
	var links []similarLink
	for i := 0; i < n; i++ {
		if removed[i] {
			continue
		}
		for j := i + 1; j < n; j++ {
			if removed[j] {
				continue
			}
			if sim.At(i, j) > threshold {
				links = append(links, similarLink{anchor: i, removed: j})
				removed[j] = true
			}
		}
	}
	return removed, links
}
