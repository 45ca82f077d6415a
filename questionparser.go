package qcorpus

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyBlock is returned for blank input blocks.
var ErrEmptyBlock = errors.New("empty text block")

// ErrTooFewAlternatives is wrapped by AlternativesError.
var ErrTooFewAlternatives = errors.New("too few alternatives")

// AlternativesError reports that no label strategy found enough
// alternatives in a block.
type AlternativesError struct {
	BestStrategy string
	Matches      int
}

func (e *AlternativesError) Error() string {
	if e.BestStrategy == "" {
		return fmt.Sprintf("could not parse alternatives: no labels found, need %d", MinAlternatives)
	}
	return fmt.Sprintf("could not parse alternatives: best strategy %s found %d, need %d",
		e.BestStrategy, e.Matches, MinAlternatives)
}

func (e *AlternativesError) Unwrap() error { return ErrTooFewAlternatives }

// alternativeStrategy recognizes one alternative-label convention.
type alternativeStrategy struct {
	name  string
	label *regexp.Regexp // group 1 is the letter
}

type labelSpan struct {
	letter     string
	start, end int
}

// labels returns every label occurrence that starts before limit.
func (s alternativeStrategy) labels(text string, limit int) []labelSpan {
	var spans []labelSpan
	for _, m := range s.label.FindAllStringSubmatchIndex(text, -1) {
		if m[0] >= limit {
			break
		}
		spans = append(spans, labelSpan{
			letter: strings.ToUpper(text[m[2]:m[3]]),
			start:  m[0],
			end:    m[1],
		})
	}
	return spans
}

// attempt extracts alternatives with this strategy. It accepts only when
// at least MinAlternatives labels are found. answerStart bounds the last
// alternative when enough labels precede the answer declaration; pass -1
// when there is none. A declaration matched inside an alternative's prose
// leaves the labels and the last alternative unbounded.
func (s alternativeStrategy) attempt(text string, answerStart int) (Alternatives, int, int, bool) {
	spans := s.labels(text, len(text))
	if answerStart > 0 {
		if before := s.labels(text, answerStart); len(before) >= MinAlternatives {
			spans = before
		} else {
			answerStart = -1
		}
	}
	if len(spans) < MinAlternatives {
		return nil, len(spans), 0, false
	}

	end := len(text)
	if answerStart > 0 {
		end = answerStart
	}
	var alts Alternatives
	for i, span := range spans {
		stop := end
		if i+1 < len(spans) {
			stop = spans[i+1].start
		}
		alts = alts.with(span.letter, strings.TrimSpace(text[span.end:stop]))
	}
	return alts, len(spans), spans[0].start, true
}

// answerPattern recognizes one way of declaring the correct answer.
// Group 1 is the letter, group 2 closes the declaration.
type answerPattern struct {
	name string
	re   *regexp.Regexp
}

type answerMatch struct {
	letter     string
	start, end int
}

func (p answerPattern) find(text string) (answerMatch, bool) {
	m := p.re.FindStringSubmatchIndex(text)
	if m == nil {
		return answerMatch{}, false
	}
	return answerMatch{
		letter: strings.ToUpper(text[m[2]:m[3]]),
		start:  m[0],
		end:    m[5],
	}, true
}

// The letter must not run into a word, so "Resposta correta" is not read
// as answer C.
const letterTail = `(\)?)(?:[^\p{L}\p{N}]|$)`

var defaultAlternativeStrategies = []alternativeStrategy{
	{name: "paren-upper", label: regexp.MustCompile(`\(([A-E])\)`)},
	{name: "paren-lower", label: regexp.MustCompile(`([a-e])\)`)},
	{name: "period-upper", label: regexp.MustCompile(`([A-E])\.`)},
	{name: "dash-upper", label: regexp.MustCompile(`([A-E])\s*[-–—]`)},
}

var defaultAnswerPatterns = []answerPattern{
	{name: "gabarito", re: regexp.MustCompile(`[Gg]abarito[:\s]*\(?([A-Ea-e])` + letterTail)},
	{name: "resposta-correta", re: regexp.MustCompile(`[Rr]esposta\s+[Cc]orreta[:\s]*\(?([A-Ea-e])` + letterTail)},
	{name: "resposta", re: regexp.MustCompile(`[Rr]esposta[:\s]*\(?([A-Ea-e])` + letterTail)},
	{name: "alternativa-correta", re: regexp.MustCompile(`[Aa]lternativa\s+[Cc]orreta[:\s]*\(?([A-Ea-e])` + letterTail)},
	{name: "GABARITO", re: regexp.MustCompile(`GABARITO[:\s]*\(?([A-E])` + letterTail)},
}

// QuestionParser turns free-text question blocks into records. The zero
// value is not usable; use NewQuestionParser.
type QuestionParser struct {
	strategies []alternativeStrategy
	answers    []answerPattern
}

// NewQuestionParser returns a parser with the built-in label strategies
// and answer patterns.
func NewQuestionParser() *QuestionParser {
	return &QuestionParser{
		strategies: defaultAlternativeStrategies,
		answers:    defaultAnswerPatterns,
	}
}

var defaultParser = NewQuestionParser()

// ParseBlock parses a block with the default parser.
func ParseBlock(text, source string, year int) (*Question, error) {
	return defaultParser.ParseBlock(text, source, year)
}

// ParseBlock parses one question block. It returns ErrEmptyBlock for
// blank input and an *AlternativesError when no strategy finds at least
// four alternatives.
func (p *QuestionParser) ParseBlock(text, source string, year int) (*Question, error) {
	return p.parseBlock(text, source, year, 0)
}

func (p *QuestionParser) parseBlock(text, source string, year, number int) (*Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyBlock
	}

	answer, hasAnswer := p.findAnswer(text)
	answerStart := -1
	if hasAnswer {
		answerStart = answer.start
	}

	var (
		alts     Alternatives
		stemEnd  int
		accepted bool
		best     = &AlternativesError{}
	)
	for _, s := range p.strategies {
		var n int
		alts, n, stemEnd, accepted = s.attempt(text, answerStart)
		if accepted {
			break
		}
		if n > best.Matches {
			best.BestStrategy, best.Matches = s.name, n
		}
	}
	if !accepted {
		return nil, best
	}

	q := Question{
		Source:         source,
		Year:           year,
		QuestionNumber: number,
		FullText:       text,
		Stem:           strings.TrimSpace(text[:stemEnd]),
		Alternatives:   alts,
	}
	if hasAnswer {
		q.CorrectAnswer = answer.letter
		q.Commentary = strings.TrimSpace(text[answer.end:])
	}
	return NewQuestion(q), nil
}

// findAnswer tries the answer patterns in priority order.
func (p *QuestionParser) findAnswer(text string) (answerMatch, bool) {
	for _, pattern := range p.answers {
		if m, ok := pattern.find(text); ok {
			return m, true
		}
	}
	return answerMatch{}, false
}

// ParseDocument splits a document into question blocks and parses each
// one. Blocks that fail are logged and returned alongside the questions;
// their Index is the block position and Number the printed number.
func (p *QuestionParser) ParseDocument(text, source string, year int) ([]*Question, []ItemError) {
	var (
		questions []*Question
		failures  []ItemError
	)
	for i, block := range SplitBlocks(text) {
		q, err := p.parseBlock(block.Text, source, year, block.Number)
		if err != nil {
			logger.Warn("skipping question block", "source", source, "number", block.Number, "error", err)
			failures = append(failures, ItemError{Index: i, Number: block.Number, Err: err})
			continue
		}
		questions = append(questions, q)
	}
	VerboseLog("parsed document", "source", source, "questions", len(questions), "failed", len(failures))
	return questions, failures
}
