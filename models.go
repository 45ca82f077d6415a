package qcorpus

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// MinAlternatives is the number of alternatives a question needs to be
// considered structurally valid.
const MinAlternatives = 4

// Alternative is one labeled answer option.
type Alternative struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Alternatives is an ordered letter -> text mapping. Order matters: it
// feeds the content hash.
type Alternatives []Alternative

// Get returns the text stored under letter.
func (a Alternatives) Get(letter string) (string, bool) {
	for _, alt := range a {
		if alt.Letter == letter {
			return alt.Text, true
		}
	}
	return "", false
}

// Letters returns the alternative letters in stored order.
func (a Alternatives) Letters() []string {
	letters := make([]string, len(a))
	for i, alt := range a {
		letters[i] = alt.Letter
	}
	return letters
}

// Texts returns the alternative texts in stored order.
func (a Alternatives) Texts() []string {
	texts := make([]string, len(a))
	for i, alt := range a {
		texts[i] = alt.Text
	}
	return texts
}

// with sets letter to text. A letter already present keeps its position.
func (a Alternatives) with(letter, text string) Alternatives {
	for i, alt := range a {
		if alt.Letter == letter {
			a[i].Text = text
			return a
		}
	}
	return append(a, Alternative{Letter: letter, Text: text})
}

// MarshalJSON encodes the alternatives as an object, keeping key order.
func (a Alternatives) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, alt := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(alt.Letter)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(alt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts either an object keyed by letter (order kept) or
// an array of texts, which are lettered A, B, C... in order.
func (a *Alternatives) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	var out Alternatives
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			key, _ := keyTok.(string)
			var text string
			if err := dec.Decode(&text); err != nil {
				return fmt.Errorf("alternative %q: %w", key, err)
			}
			letter, err := normalizeLetter(key)
			if err != nil {
				return err
			}
			out = out.with(letter, text)
		}
	case json.Delim('['):
		for i := 0; dec.More(); i++ {
			var text string
			if err := dec.Decode(&text); err != nil {
				return fmt.Errorf("alternative %d: %w", i, err)
			}
			if i >= len(answerLetters) {
				return fmt.Errorf("too many alternatives: more than %d", len(answerLetters))
			}
			out = append(out, Alternative{Letter: string(answerLetters[i]), Text: text})
		}
	default:
		return fmt.Errorf("alternatives must be an object or an array")
	}

	*a = out
	return nil
}

const answerLetters = "ABCDE"

// normalizeLetter upper-cases a single-letter label and checks it is A-E.
func normalizeLetter(s string) (string, error) {
	letter := strings.ToUpper(strings.TrimSpace(s))
	if len(letter) != 1 || !strings.Contains(answerLetters, letter) {
		return "", fmt.Errorf("invalid alternative letter %q", s)
	}
	return letter, nil
}

// Question is a structured exam question record. Records are built once
// with NewQuestion and not modified afterwards.
type Question struct {
	ID             string            `json:"id"`
	Source         string            `json:"source"`
	Year           int               `json:"year"`
	QuestionNumber int               `json:"question_number,omitempty"`
	FullText       string            `json:"full_text"`
	Stem           string            `json:"stem"`
	Alternatives   Alternatives      `json:"alternatives"`
	CorrectAnswer  string            `json:"correct_answer"` // "" when not determined
	Commentary     string            `json:"commentary,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	hash string
}

// NewQuestion builds a record and computes its content hash. An empty ID
// is synthesized from source, year and stem.
func NewQuestion(q Question) *Question {
	q.Alternatives = append(Alternatives(nil), q.Alternatives...)
	q.hash = ContentHash(q.Stem, q.Alternatives)
	if q.ID == "" {
		q.ID = SynthesizeID(q.Source, q.Year, q.Stem)
	}
	return &q
}

// ContentHash returns the record's content fingerprint.
func (q *Question) ContentHash() string {
	return q.hash
}

// IsValid reports whether the record has enough alternatives.
func (q *Question) IsValid() bool {
	return len(q.Alternatives) >= MinAlternatives
}

// MarshalJSON adds the derived content hash to the encoded record.
func (q *Question) MarshalJSON() ([]byte, error) {
	type plain Question
	return json.Marshal(struct {
		*plain
		ContentHash string `json:"content_hash"`
	}{(*plain)(q), q.hash})
}

// ContentHash fingerprints a stem followed by its alternative texts in
// order. It depends on nothing else.
func ContentHash(stem string, alts Alternatives) string {
	h := blake3.New()
	h.Write([]byte(stem))
	for _, alt := range alts {
		h.Write([]byte(alt.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SynthesizeID builds the deterministic "{source}_{year}_{hash8}" ID.
func SynthesizeID(source string, year int, stem string) string {
	sum := blake3.Sum256([]byte(stem))
	return fmt.Sprintf("%s_%d_%s", source, year, hex.EncodeToString(sum[:])[:8])
}

// DuplicateKind tells which deduplication phase produced a pair.
type DuplicateKind string

const (
	DuplicateExact    DuplicateKind = "exact"
	DuplicateSemantic DuplicateKind = "semantic"
)

// DuplicatePair links two records found to be duplicates. Exact pairs
// are (duplicate, first seen); semantic pairs are (anchor, removed).
type DuplicatePair struct {
	First      string        `json:"first"`
	Second     string        `json:"second"`
	Kind       DuplicateKind `json:"kind"`
	Similarity float64       `json:"similarity,omitempty"`
}
