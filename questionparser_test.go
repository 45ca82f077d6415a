package qcorpus

import (
	"errors"
	"strings"
	"testing"
)

// TestParseBlockParenUpper parses the canonical "(A) ... Gabarito: C" form.
func TestParseBlockParenUpper(t *testing.T) {
	q, err := ParseBlock("(A) x (B) y (C) z (D) w\nGabarito: C", "ENARE", 2022)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := strings.Join(q.Alternatives.Letters(), ""); got != "ABCD" {
		t.Fatalf("expected letters ABCD, got %s", got)
	}
	if got := strings.Join(q.Alternatives.Texts(), ","); got != "x,y,z,w" {
		t.Fatalf("unexpected texts %s", got)
	}
	if q.CorrectAnswer != "C" {
		t.Fatalf("expected answer C, got %q", q.CorrectAnswer)
	}
	if q.Stem != "" {
		t.Fatalf("expected empty stem, got %q", q.Stem)
	}
	if q.ID != SynthesizeID("ENARE", 2022, "") {
		t.Fatalf("unexpected id %s", q.ID)
	}
	if q.FullText != "(A) x (B) y (C) z (D) w\nGabarito: C" {
		t.Fatalf("expected full text to be kept, got %q", q.FullText)
	}
}

// TestParseBlockStrategies covers each label convention.
func TestParseBlockStrategies(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		stem    string
		letters string
		last    string
		answer  string
	}{
		{
			name:    "paren lower",
			text:    "Qual?\na) um\nb) dois\nc) três\nd) quatro\nResposta: b",
			stem:    "Qual?",
			letters: "ABCD",
			last:    "quatro",
			answer:  "B",
		},
		{
			name:    "period upper",
			text:    "Quem?\nA. um\nB. dois\nC. três\nD. quatro\nE. cinco\nGabarito: E",
			stem:    "Quem?",
			letters: "ABCDE",
			last:    "cinco",
			answer:  "E",
		},
		{
			name:    "dash upper",
			text:    "Pergunta\nA - um\nB - dois\nC – três\nD - quatro",
			stem:    "Pergunta",
			letters: "ABCD",
			last:    "quatro",
			answer:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseBlock(tt.text, "s", 2020)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if q.Stem != tt.stem {
				t.Fatalf("expected stem %q, got %q", tt.stem, q.Stem)
			}
			if got := strings.Join(q.Alternatives.Letters(), ""); got != tt.letters {
				t.Fatalf("expected letters %s, got %s", tt.letters, got)
			}
			texts := q.Alternatives.Texts()
			if texts[len(texts)-1] != tt.last {
				t.Fatalf("expected last alternative %q, got %q", tt.last, texts[len(texts)-1])
			}
			if q.CorrectAnswer != tt.answer {
				t.Fatalf("expected answer %q, got %q", tt.answer, q.CorrectAnswer)
			}
		})
	}
}

// TestParseBlockCommentary checks that text after the answer declaration
// becomes commentary.
func TestParseBlockCommentary(t *testing.T) {
	q, err := ParseBlock("Enunciado\n(A) a1 (B) b2 (C) c3 (D) d4\nGabarito: B\nComentário: porque sim.", "s", 2020)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.CorrectAnswer != "B" {
		t.Fatalf("expected answer B, got %q", q.CorrectAnswer)
	}
	if q.Commentary != "Comentário: porque sim." {
		t.Fatalf("unexpected commentary %q", q.Commentary)
	}
	if text, _ := q.Alternatives.Get("D"); text != "d4" {
		t.Fatalf("expected last alternative to stop at the answer, got %q", text)
	}
}

// TestParseBlockAnswerPhraseInAlternative checks that answer-like prose
// inside an alternative does not cut the label list short.
func TestParseBlockAnswerPhraseInAlternative(t *testing.T) {
	q, err := ParseBlock("Paciente com asma. Qual a conduta?\n(A) boa resposta a corticoide\n(B) y\n(C) z\n(D) w", "T", 2024)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := strings.Join(q.Alternatives.Letters(), ""); got != "ABCD" {
		t.Fatalf("expected alternatives ABCD, got %q", got)
	}
	if q.Stem != "Paciente com asma. Qual a conduta?" {
		t.Fatalf("unexpected stem %q", q.Stem)
	}
	if text, _ := q.Alternatives.Get("A"); text != "boa resposta a corticoide" {
		t.Fatalf("unexpected alternative A %q", text)
	}
	if text, _ := q.Alternatives.Get("D"); text != "w" {
		t.Fatalf("unexpected alternative D %q", text)
	}
}

// TestParseBlockAnswerPriority checks that gabarito wins over resposta.
func TestParseBlockAnswerPriority(t *testing.T) {
	q, err := ParseBlock("(A) um (B) dois (C) três (D) quatro\nResposta: B\nGabarito: A", "s", 2020)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.CorrectAnswer != "A" {
		t.Fatalf("expected answer A, got %q", q.CorrectAnswer)
	}
}

// TestParseBlockRespostaCorreta checks the phrase is not read as answer C.
func TestParseBlockRespostaCorreta(t *testing.T) {
	q, err := ParseBlock("Enunciado (A) um (B) dois (C) três (D) quatro\nResposta correta: D", "s", 2020)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.CorrectAnswer != "D" {
		t.Fatalf("expected answer D, got %q", q.CorrectAnswer)
	}

	q, err = ParseBlock("Enunciado (A) um (B) dois (C) três (D) quatro\nResposta correta é a D", "s", 2020)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.CorrectAnswer != "" {
		t.Fatalf("expected no answer, got %q", q.CorrectAnswer)
	}
}

// TestParseBlockErrors covers blank input and too few alternatives.
func TestParseBlockErrors(t *testing.T) {
	if _, err := ParseBlock("  \n\t", "s", 2020); !errors.Is(err, ErrEmptyBlock) {
		t.Fatalf("expected ErrEmptyBlock, got %v", err)
	}

	_, err := ParseBlock("Qual? (A) um (B) dois", "s", 2020)
	if !errors.Is(err, ErrTooFewAlternatives) {
		t.Fatalf("expected ErrTooFewAlternatives, got %v", err)
	}
	var altErr *AlternativesError
	if !errors.As(err, &altErr) {
		t.Fatalf("expected *AlternativesError, got %T", err)
	}
	if altErr.BestStrategy != "paren-upper" || altErr.Matches != 2 {
		t.Fatalf("unexpected best attempt %s/%d", altErr.BestStrategy, altErr.Matches)
	}
}

// TestParseDocument checks numbering and that bad blocks are reported
// without stopping the rest.
func TestParseDocument(t *testing.T) {
	doc := "Prova 2024\nQUESTÃO 1\n(A) a (B) b (C) c (D) d\nGabarito: A\n" +
		"QUESTÃO 2\nsem alternativas\n" +
		"QUESTÃO 3\nQual?\n(A) x (B) y (C) z (D) w"

	questions, failures := NewQuestionParser().ParseDocument(doc, "ENARE", 2024)
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].QuestionNumber != 1 || questions[1].QuestionNumber != 3 {
		t.Fatalf("unexpected numbers %d, %d", questions[0].QuestionNumber, questions[1].QuestionNumber)
	}
	if questions[1].Stem != "Qual?" || questions[1].Source != "ENARE" || questions[1].Year != 2024 {
		t.Fatalf("unexpected record %+v", questions[1])
	}
	if len(failures) != 1 || failures[0].Number != 2 || failures[0].Index != 1 {
		t.Fatalf("unexpected failures %+v", failures)
	}
	if !errors.Is(failures[0], ErrTooFewAlternatives) {
		t.Fatalf("expected failure to wrap ErrTooFewAlternatives, got %v", failures[0].Err)
	}
}
