package qcorpus

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"qcorpus/internal/stats"
)

// BasicStatistics is the descriptive section of a corpus report.
type BasicStatistics struct {
	TotalQuestions      int            `json:"total_questions"`
	Sources             map[string]int `json:"sources"`
	Years               map[int]int    `json:"years"`
	HasCommentary       int            `json:"has_commentary"`
	HasCorrectAnswer    int            `json:"has_correct_answer"`
	NumAlternativesDist map[int]int    `json:"num_alternatives_dist"`
	StemLength          stats.Summary  `json:"stem_length"`
	AlternativeLength   stats.Summary  `json:"alternative_length"`
	CorrectAnswerDist   map[string]int `json:"correct_answer_dist"`
}

// LinguisticAnalysis counts wording markers across the corpus.
type LinguisticAnalysis struct {
	NegativeQuestions    int            `json:"negative_questions"`
	NegativePatterns     map[string]int `json:"negative_patterns"`
	HedgingMarkers       map[string]int `json:"hedging_markers"`
	AbsoluteTerms        map[string]int `json:"absolute_terms"`
	NegativeQuestionRate float64        `json:"negative_question_rate"`
}

// LengthStats is a mean and population standard deviation of word counts.
type LengthStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// CorrectAnswerAnalysis describes the answer key: how letters are spread
// and whether correct alternatives are longer than distractors.
type CorrectAnswerAnalysis struct {
	Warning         string                `json:"warning,omitempty"`
	Distribution    map[string]int        `json:"distribution"`
	ChiSquare       stats.ChiSquareResult `json:"chi2_uniform"`
	IsUniform       bool                  `json:"is_uniform"`
	CorrectLength   LengthStats           `json:"correct_length"`
	IncorrectLength LengthStats           `json:"incorrect_length"`
	LengthBias      float64               `json:"length_bias"`
}

// Report bundles every analysis section.
type Report struct {
	Basic         BasicStatistics       `json:"basic"`
	Linguistic    LinguisticAnalysis    `json:"linguistic"`
	CorrectAnswer CorrectAnswerAnalysis `json:"correct_answer"`
	GeneratedAt   time.Time             `json:"timestamp"`
}

// uniformityAlpha is the significance level of the answer-key test.
const uniformityAlpha = 0.05

// marker is a word or phrase counted by the linguistic analysis.
type marker struct {
	label string
	re    *regexp.Regexp
}

// Matched case-sensitively against the stem; the first hit labels the
// question.
var negativeMarkers = []marker{
	{"NÃO", regexp.MustCompile(`NÃO`)},
	{"EXCETO", regexp.MustCompile(`EXCETO`)},
	{"INCORRETA", regexp.MustCompile(`INCORRETA?`)},
	{"INADEQUADO", regexp.MustCompile(`INADEQUAD[AO]`)},
}

// Matched against lower-cased stem and alternatives, every occurrence
// counted. Report keys are the pattern sources so reports stay comparable
// with earlier runs.
var hedgingMarkers = []marker{
	{"pode", regexp.MustCompile(`pode`)},
	{"possível", regexp.MustCompile(`possível`)},
	{"provável", regexp.MustCompile(`provável`)},
	{"geralmente", regexp.MustCompile(`geralmente`)},
	{"frequentemente", regexp.MustCompile(`frequentemente`)},
	{`mais\s+comum`, regexp.MustCompile(`mais\s+comum`)},
	{"principal", regexp.MustCompile(`principal`)},
	{"habitualmente", regexp.MustCompile(`habitualmente`)},
}

var absoluteMarkers = []marker{
	{"sempre", regexp.MustCompile(`sempre`)},
	{"nunca", regexp.MustCompile(`nunca`)},
	{"único", regexp.MustCompile(`único`)},
	{"todos?", regexp.MustCompile(`todos?`)},
	{"nenhu[mn]", regexp.MustCompile(`nenhu[mn]`)},
	{"obrigatoriamente", regexp.MustCompile(`obrigatoriamente`)},
	{"exclusivamente", regexp.MustCompile(`exclusivamente`)},
	{"invariavel", regexp.MustCompile(`invariavel`)},
}

// count returns the number of whole-word occurrences in text.
func (m marker) count(text string) int {
	n := 0
	for _, loc := range m.re.FindAllStringIndex(text, -1) {
		if isWordBounded(text, loc[0], loc[1]) {
			n++
		}
	}
	return n
}

// isWordBounded reports whether text[start:end] is not glued to letters,
// digits or underscores on either side. Unlike RE2's \b it understands
// accented letters.
func isWordBounded(text string, start, end int) bool {
	if r, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && isWordRune(r) {
		return false
	}
	if r, _ := utf8.DecodeRuneInString(text[end:]); end < len(text) && isWordRune(r) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// Analyzer computes corpus-level statistics. It only reads the corpus.
type Analyzer struct {
	corpus *Corpus
	now    func() time.Time
}

// NewAnalyzer creates an analyzer over corpus.
func NewAnalyzer(corpus *Corpus) *Analyzer {
	logger.Info("corpus analyzer initialized", "questions", corpus.Len())
	return &Analyzer{corpus: corpus, now: time.Now}
}

// BasicStatistics counts provenance, structure and length distributions.
// An empty corpus yields zero counts and zero summaries.
func (a *Analyzer) BasicStatistics() BasicStatistics {
	s := BasicStatistics{
		TotalQuestions:      a.corpus.Len(),
		Sources:             map[string]int{},
		Years:               map[int]int{},
		NumAlternativesDist: map[int]int{},
		CorrectAnswerDist:   map[string]int{},
	}

	var stemLengths, altLengths []float64
	for _, q := range a.corpus.questions {
		s.Sources[q.Source]++
		s.Years[q.Year]++
		s.NumAlternativesDist[len(q.Alternatives)]++
		if q.Commentary != "" {
			s.HasCommentary++
		}
		if q.CorrectAnswer != "" {
			s.HasCorrectAnswer++
			s.CorrectAnswerDist[q.CorrectAnswer]++
		}
		stemLengths = append(stemLengths, float64(wordCount(q.Stem)))
		for _, alt := range q.Alternatives {
			altLengths = append(altLengths, float64(wordCount(alt.Text)))
		}
	}
	s.StemLength = stats.Summarize(stemLengths)
	s.AlternativeLength = stats.Summarize(altLengths)
	return s
}

// LinguisticAnalysis counts negative stems, hedging and absolute terms.
func (a *Analyzer) LinguisticAnalysis() LinguisticAnalysis {
	l := LinguisticAnalysis{
		NegativePatterns: map[string]int{},
		HedgingMarkers:   map[string]int{},
		AbsoluteTerms:    map[string]int{},
	}

	for _, q := range a.corpus.questions {
		stem := norm.NFC.String(q.Stem)
		for _, m := range negativeMarkers {
			if m.count(stem) > 0 {
				l.NegativeQuestions++
				l.NegativePatterns[m.label]++
				break
			}
		}

		text := strings.ToLower(norm.NFC.String(q.Stem + " " + strings.Join(q.Alternatives.Texts(), " ")))
		for _, m := range hedgingMarkers {
			if n := m.count(text); n > 0 {
				l.HedgingMarkers[m.label] += n
			}
		}
		for _, m := range absoluteMarkers {
			if n := m.count(text); n > 0 {
				l.AbsoluteTerms[m.label] += n
			}
		}
	}

	if n := a.corpus.Len(); n > 0 {
		l.NegativeQuestionRate = float64(l.NegativeQuestions) / float64(n)
	}
	return l
}

// CorrectAnswerAnalysis tests whether the answer key is spread uniformly
// over the letters that occur and compares correct against incorrect
// alternative lengths.
func (a *Analyzer) CorrectAnswerAnalysis() CorrectAnswerAnalysis {
	r := CorrectAnswerAnalysis{Distribution: map[string]int{}}
	for _, q := range a.corpus.questions {
		if q.CorrectAnswer != "" {
			r.Distribution[q.CorrectAnswer]++
		}
	}
	if len(r.Distribution) == 0 {
		r.Warning = "no correct answers available"
		return r
	}

	var observed []float64
	for _, letter := range answerLetters {
		if n, ok := r.Distribution[string(letter)]; ok {
			observed = append(observed, float64(n))
		}
	}
	r.ChiSquare = stats.ChiSquareUniform(observed)
	r.IsUniform = r.ChiSquare.DegreesOfFreedom > 0 && r.ChiSquare.PValue > uniformityAlpha

	var correct, incorrect []float64
	for _, q := range a.corpus.questions {
		text, ok := q.Alternatives.Get(q.CorrectAnswer)
		if q.CorrectAnswer == "" || !ok {
			continue
		}
		correct = append(correct, float64(wordCount(text)))
		for _, alt := range q.Alternatives {
			if alt.Letter != q.CorrectAnswer {
				incorrect = append(incorrect, float64(wordCount(alt.Text)))
			}
		}
	}
	r.CorrectLength.Mean, r.CorrectLength.Std = stats.MeanStd(correct)
	r.IncorrectLength.Mean, r.IncorrectLength.Std = stats.MeanStd(incorrect)
	if len(correct) > 0 && len(incorrect) > 0 {
		r.LengthBias = r.CorrectLength.Mean - r.IncorrectLength.Mean
	}
	return r
}

// GenerateReport runs every analysis and stamps the result.
func (a *Analyzer) GenerateReport() *Report {
	return &Report{
		Basic:         a.BasicStatistics(),
		Linguistic:    a.LinguisticAnalysis(),
		CorrectAnswer: a.CorrectAnswerAnalysis(),
		GeneratedAt:   a.now(),
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
