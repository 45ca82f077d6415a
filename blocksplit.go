package qcorpus

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Block is one question's worth of text cut out of a larger document.
// Number is the printed question number, or 0 when unknown.
type Block struct {
	Number int
	Text   string
}

const maxQuestionNumber = 300

var (
	questionHeader = regexp.MustCompile(`(?i)QUEST[ÃA]O\s+(\d+)`)
	numberedLine   = regexp.MustCompile(`(?m)^[ \t]*(\d{1,3})[ \t]*[.\-–][ \t]+`)
	blockSeparator = regexp.MustCompile(`\n[ \t]*(?:-{3,}|={3,})[ \t]*\n|\n(?:[ \t]*\n){2,}`)
)

// SplitBlocks cuts a document (booklet text, extracted PDF text) into
// question blocks. "QUESTÃO n" headers are preferred; otherwise numbered
// lines ("12." or "12 -"); otherwise separator lines or runs of two or
// more blank lines. Text before the first header is dropped.
func SplitBlocks(text string) []Block {
	text = norm.NFC.String(text)
	if blocks := splitOnHeaders(text, questionHeader); len(blocks) > 0 {
		return blocks
	}
	if blocks := splitOnHeaders(text, numberedLine); len(blocks) > 1 {
		return blocks
	}

	var blocks []Block
	for _, part := range blockSeparator.Split(text, -1) {
		if part = strings.TrimSpace(part); part != "" {
			blocks = append(blocks, Block{Text: part})
		}
	}
	return blocks
}

func splitOnHeaders(text string, header *regexp.Regexp) []Block {
	matches := header.FindAllStringSubmatchIndex(text, -1)
	var blocks []Block
	for i, m := range matches {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || n < 1 || n > maxQuestionNumber {
			continue
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		if body == "" {
			continue
		}
		blocks = append(blocks, Block{Number: n, Text: body})
	}
	return blocks
}
