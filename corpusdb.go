package qcorpus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the corpus archive: analysis runs with their records, duplicate
// pairs and reports.
type DB struct {
	db *sql.DB
}

// DBRun is one archived analysis run.
type DBRun struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Inputs          []string  `json:"inputs"`
	TotalQuestions  int       `json:"total_questions"`
	UniqueQuestions int       `json:"unique_questions"`
	Threshold       float64   `json:"threshold"`
	SemanticSkipped string    `json:"semantic_skipped"`
	Report          string    `json:"report"` // JSON encoded Report
}

// OpenDB opens a new database connection
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			inputs TEXT NOT NULL,
			total_questions INTEGER NOT NULL,
			unique_questions INTEGER NOT NULL,
			threshold REAL NOT NULL,
			semantic_skipped TEXT,
			report TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			source TEXT NOT NULL,
			year INTEGER NOT NULL,
			question_number INTEGER NOT NULL,
			full_text TEXT NOT NULL,
			stem TEXT NOT NULL,
			alternatives TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			commentary TEXT,
			metadata TEXT,
			content_hash TEXT NOT NULL,
			is_unique INTEGER NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS questions_hash ON questions(content_hash)`,
		`CREATE TABLE IF NOT EXISTS duplicate_pairs (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			first_id TEXT NOT NULL,
			second_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			similarity REAL NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// SaveRun stores a run with its records and duplicate pairs in one
// transaction. unique holds the records that survived deduplication.
func (db *DB) SaveRun(run *DBRun, questions []*Question, unique *Corpus, pairs []DuplicatePair) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO runs (id, created_at, inputs, total_questions, unique_questions, threshold, semantic_skipped, report) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.CreatedAt, string(inputs), run.TotalQuestions, run.UniqueQuestions, run.Threshold, run.SemanticSkipped, run.Report,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	kept := make(map[*Question]bool)
	if unique != nil {
		for _, q := range unique.questions {
			kept[q] = true
		}
	}

	questionStmt, err := tx.Prepare(
		"INSERT INTO questions (run_id, position, id, source, year, question_number, full_text, stem, alternatives, correct_answer, commentary, metadata, content_hash, is_unique) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare question insert: %w", err)
	}
	defer questionStmt.Close()

	for i, q := range questions {
		alts, err := json.Marshal(q.Alternatives)
		if err != nil {
			return fmt.Errorf("failed to marshal alternatives for %s: %w", q.ID, err)
		}
		meta, err := json.Marshal(q.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", q.ID, err)
		}
		_, err = questionStmt.Exec(
			run.ID, i, q.ID, q.Source, q.Year, q.QuestionNumber, q.FullText, q.Stem,
			string(alts), q.CorrectAnswer, q.Commentary, string(meta), q.hash, kept[q],
		)
		if err != nil {
			return fmt.Errorf("failed to store question %s: %w", q.ID, err)
		}
	}

	for i, p := range pairs {
		_, err := tx.Exec(
			"INSERT INTO duplicate_pairs (run_id, position, first_id, second_id, kind, similarity) VALUES (?, ?, ?, ?, ?, ?)",
			run.ID, i, p.First, p.Second, string(p.Kind), p.Similarity,
		)
		if err != nil {
			return fmt.Errorf("failed to store duplicate pair: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = "id, created_at, inputs, total_questions, unique_questions, threshold, semantic_skipped, report"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*DBRun, error) {
	var (
		run     DBRun
		inputs  string
		skipped sql.NullString
	)
	err := row.Scan(&run.ID, &run.CreatedAt, &inputs, &run.TotalQuestions, &run.UniqueQuestions, &run.Threshold, &skipped, &run.Report)
	if err != nil {
		return nil, err
	}
	run.SemanticSkipped = skipped.String
	if err := json.Unmarshal([]byte(inputs), &run.Inputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
	}
	return &run, nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id string) (*DBRun, error) {
	run, err := scanRun(db.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRuns retrieves runs newest first, optionally limited by count
func (db *DB) GetRuns(limit int) ([]DBRun, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs: %w", err)
	}
	defer rows.Close()

	var runs []DBRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// GetRunQuestions retrieves the records of a run in input order. With
// uniqueOnly set, only deduplication survivors are returned.
func (db *DB) GetRunQuestions(runID string, uniqueOnly bool) ([]*Question, error) {
	query := "SELECT id, source, year, question_number, full_text, stem, alternatives, correct_answer, commentary, metadata FROM questions WHERE run_id = ?"
	if uniqueOnly {
		query += " AND is_unique = 1"
	}
	query += " ORDER BY position"

	rows, err := db.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		var (
			q                Question
			alts             string
			commentary, meta sql.NullString
		)
		err := rows.Scan(&q.ID, &q.Source, &q.Year, &q.QuestionNumber, &q.FullText, &q.Stem, &alts, &q.CorrectAnswer, &commentary, &meta)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(alts), &q.Alternatives); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alternatives: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &q.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		q.Commentary = commentary.String
		questions = append(questions, NewQuestion(q))
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}

	return questions, nil
}

// GetDuplicatePairs retrieves the duplicate pairs of a run in the order
// they were found.
func (db *DB) GetDuplicatePairs(runID string) ([]DuplicatePair, error) {
	rows, err := db.db.Query(
		"SELECT first_id, second_id, kind, similarity FROM duplicate_pairs WHERE run_id = ? ORDER BY position",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get duplicate pairs: %w", err)
	}
	defer rows.Close()

	var pairs []DuplicatePair
	for rows.Next() {
		var (
			p    DuplicatePair
			kind string
		)
		if err := rows.Scan(&p.First, &p.Second, &kind, &p.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate pair: %w", err)
		}
		p.Kind = DuplicateKind(kind)
		pairs = append(pairs, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate pairs: %w", err)
	}

	return pairs, nil
}

// DecodeReport parses the stored report JSON.
func (run *DBRun) DecodeReport() (*Report, error) {
	var report Report
	if err := json.Unmarshal([]byte(run.Report), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report for run %s: %w", run.ID, err)
	}
	return &report, nil
}
