package qcorpus

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/ulikunitz/xz"
)

// ItemError records one input item (JSON element, CSV row, document
// block) that was skipped.
type ItemError struct {
	Index  int
	Number int
	Err    error
}

func (e ItemError) Error() string {
	if e.Number > 0 {
		return fmt.Sprintf("item %d (question %d): %v", e.Index, e.Number, e.Err)
	}
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

const defaultSource = "unknown"

// Accepted key names per field, in priority order.
var (
	idKeys          = []string{"id"}
	stemKeys        = []string{"question", "stem", "enunciado", "text"}
	fullTextKeys    = []string{"full_text", "question", "stem", "enunciado", "text"}
	alternativeKeys = []string{"alternatives", "options", "alternativas"}
	answerKeys      = []string{"answer", "correct", "correct_answer", "gabarito"}
	commentaryKeys  = []string{"commentary", "explanation", "comentario"}
	sourceKeys      = []string{"source", "banca"}
	yearKeys        = []string{"year", "ano"}
	numberKeys      = []string{"number", "question_number", "numero"}
	metadataKeys    = []string{"metadata"}
)

// IngestJSON reads a JSON array of question objects. Malformed items are
// logged, skipped and reported; only a document that is not an array
// fails as a whole.
func IngestJSON(r io.Reader) ([]*Question, []ItemError, error) {
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, nil, fmt.Errorf("failed to decode question array: %w", err)
	}

	var (
		questions []*Question
		failures  []ItemError
	)
	for i, raw := range items {
		q, err := questionFromJSON(raw)
		if err != nil {
			logger.Error("failed to parse item", "index", i, "error", err)
			failures = append(failures, ItemError{Index: i, Err: err})
			continue
		}
		questions = append(questions, q)
	}
	return questions, failures, nil
}

type jsonItem map[string]json.RawMessage

// lookup returns the first alias present with a non-null value.
func (it jsonItem) lookup(keys []string) (json.RawMessage, string, bool) {
	for _, key := range keys {
		raw, ok := it[key]
		if ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return raw, key, true
		}
	}
	return nil, "", false
}

func (it jsonItem) text(keys []string) (string, error) {
	raw, key, ok := it.lookup(keys)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Numbers are accepted for text fields such as id.
		var n json.Number
		if json.Unmarshal(raw, &n) != nil {
			return "", fmt.Errorf("field %q: expected a string", key)
		}
		return n.String(), nil
	}
	return s, nil
}

func (it jsonItem) integer(keys []string) (int, error) {
	raw, key, ok := it.lookup(keys)
	if !ok {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("field %q: expected a number", key)
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if n == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return v, nil
}

func questionFromJSON(raw json.RawMessage) (*Question, error) {
	var item jsonItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("item is not an object: %w", err)
	}

	var (
		q   Question
		err error
	)
	if q.ID, err = item.text(idKeys); err != nil {
		return nil, err
	}
	if q.Stem, err = item.text(stemKeys); err != nil {
		return nil, err
	}
	if q.FullText, err = item.text(fullTextKeys); err != nil {
		return nil, err
	}
	if q.Commentary, err = item.text(commentaryKeys); err != nil {
		return nil, err
	}
	if q.Source, err = item.text(sourceKeys); err != nil {
		return nil, err
	}
	if q.Source == "" {
		q.Source = defaultSource
	}
	if q.Year, err = item.integer(yearKeys); err != nil {
		return nil, err
	}
	if q.QuestionNumber, err = item.integer(numberKeys); err != nil {
		return nil, err
	}

	answer, err := item.text(answerKeys)
	if err != nil {
		return nil, err
	}
	if q.CorrectAnswer, err = normalizeAnswer(answer); err != nil {
		return nil, err
	}

	if rawAlts, key, ok := item.lookup(alternativeKeys); ok {
		if err := json.Unmarshal(rawAlts, &q.Alternatives); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
	}

	if rawMeta, _, ok := item.lookup(metadataKeys); ok {
		if q.Metadata, err = decodeMetadata(rawMeta); err != nil {
			return nil, err
		}
	}
	return NewQuestion(q), nil
}

// decodeMetadata flattens a metadata object into strings; non-string
// values keep their JSON text.
func decodeMetadata(raw json.RawMessage) (map[string]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("field \"metadata\": expected an object")
	}
	meta := make(map[string]string, len(fields))
	for k, v := range fields {
		var s string
		if json.Unmarshal(v, &s) == nil {
			meta[k] = s
			continue
		}
		meta[k] = string(v)
	}
	return meta, nil
}

// normalizeAnswer accepts "", "c", "C", "(C)" or "C)" style answers.
func normalizeAnswer(s string) (string, error) {
	s = strings.Trim(strings.TrimSpace(s), "().")
	if s == "" {
		return "", nil
	}
	letter, err := normalizeLetter(s)
	if err != nil {
		return "", fmt.Errorf("invalid correct answer %q", s)
	}
	return letter, nil
}

// IngestCSV reads one question per row. Alternatives come from the
// alt_a..alt_e columns; blank cells are left out. year and number fall
// back to 0 when missing or unparsable.
func IngestCSV(r io.Reader) ([]*Question, []ItemError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	var (
		questions []*Question
		failures  []ItemError
	)
	for i := 0; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.Error("failed to parse row", "index", i, "error", err)
				failures = append(failures, ItemError{Index: i, Err: err})
				continue
			}
			return questions, failures, fmt.Errorf("failed to read csv: %w", err)
		}

		q, err := questionFromRow(csvRow{columns: columns, record: record})
		if err != nil {
			logger.Error("failed to parse row", "index", i, "error", err)
			failures = append(failures, ItemError{Index: i, Err: err})
			continue
		}
		questions = append(questions, q)
	}
	return questions, failures, nil
}

type csvRow struct {
	columns map[string]int
	record  []string
}

// get returns the first non-blank cell among the named columns.
func (r csvRow) get(names ...string) string {
	for _, name := range names {
		i, ok := r.columns[name]
		if !ok || i >= len(r.record) {
			continue
		}
		if v := strings.TrimSpace(r.record[i]); v != "" {
			return r.record[i]
		}
	}
	return ""
}

func (r csvRow) integer(names ...string) int {
	v := strings.TrimSpace(r.get(names...))
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return 0
}

func questionFromRow(row csvRow) (*Question, error) {
	q := Question{
		ID:             strings.TrimSpace(row.get("id")),
		Source:         strings.TrimSpace(row.get("source", "banca")),
		Year:           row.integer("year", "ano"),
		QuestionNumber: row.integer("number", "question_number", "numero"),
		FullText:       row.get("full_text", "stem", "question"),
		Stem:           row.get("stem", "question", "enunciado"),
		Commentary:     strings.TrimSpace(row.get("commentary", "explanation", "comentario")),
	}
	if q.Source == "" {
		q.Source = defaultSource
	}

	answer, err := normalizeAnswer(row.get("answer", "correct", "correct_answer", "gabarito"))
	if err != nil {
		return nil, err
	}
	q.CorrectAnswer = answer

	for _, letter := range answerLetters {
		if text := row.get("alt_" + strings.ToLower(string(letter))); text != "" {
			q.Alternatives = append(q.Alternatives, Alternative{Letter: string(letter), Text: text})
		}
	}
	return NewQuestion(q), nil
}

// LoadOptions carries provenance for inputs that do not state it.
type LoadOptions struct {
	Source string
	Year   int
	Parser *QuestionParser
}

// LoadResult is the outcome of loading one input file.
type LoadResult struct {
	Path      string
	Questions []*Question
	Failures  []ItemError
}

// LoadFile reads questions from path, choosing the reader by extension:
// .json, .csv, .txt/.md (free text) or .pdf. A trailing .xz is
// decompressed first.
func LoadFile(path string, opts LoadOptions) (*LoadResult, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if opts.Source == "" {
		opts.Source = defaultSource
	}
	if opts.Parser == nil {
		opts.Parser = defaultParser
	}

	result := &LoadResult{Path: path}
	switch ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(strings.ToLower(path), ".xz"))); ext {
	case ".json":
		result.Questions, result.Failures, err = IngestJSON(bytes.NewReader(data))
	case ".csv":
		result.Questions, result.Failures, err = IngestCSV(bytes.NewReader(data))
	case ".txt", ".md", "":
		result.Questions, result.Failures = opts.Parser.ParseDocument(string(data), opts.Source, opts.Year)
	case ".pdf":
		var text string
		if text, err = pdfText(data); err == nil {
			result.Questions, result.Failures = opts.Parser.ParseDocument(text, opts.Source, opts.Year)
		}
	default:
		return nil, fmt.Errorf("unsupported input type %q: %s", ext, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	logger.Info("loaded input", "path", path, "questions", len(result.Questions), "skipped", len(result.Failures))
	return result, nil
}

func readInput(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".xz") {
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz stream %s: %w", path, err)
		}
		r = xzr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// pdfText extracts the plain text of every page.
func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			logger.Warn("skipping pdf page", "page", i, "error", err)
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "", errors.New("no extractable text found in pdf")
	}
	return b.String(), nil
}
