package qcorpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RunHeader describes an analysis run for the log file header.
type RunHeader struct {
	Inputs    []string
	Threshold float64
	Model     string
}

// RunLogger writes an audit trail of one analysis run: embedding calls
// and every duplicate decision.
type RunLogger struct {
	file  *os.File
	mu    sync.Mutex
	runID string
	path  string
}

// NewRunLogger creates dir/<runID>.log and writes the run header.
func NewRunLogger(dir, runID string, header RunHeader) (*RunLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", runID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	rl := &RunLogger{
		file:  file,
		runID: runID,
		path:  filename,
	}

	rl.Logf("=== Corpus Analysis Log ===\n")
	rl.Logf("Run ID: %s\n", runID)
	rl.Logf("Inputs: %s\n", strings.Join(header.Inputs, ", "))
	rl.Logf("Similarity Threshold: %.2f\n", header.Threshold)
	if header.Model != "" {
		rl.Logf("Embedding Model: %s\n", header.Model)
	}
	rl.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	rl.Logf("========================\n\n")

	return rl, nil
}

// Path returns the log file path.
func (rl *RunLogger) Path() string {
	return rl.path
}

// Logf writes a formatted log entry with timestamp
func (rl *RunLogger) Logf(format string, args ...interface{}) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.logf(format, args...)
}

func (rl *RunLogger) logf(format string, args ...interface{}) {
	if rl.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(rl.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	rl.file.Sync()
}

// LogEmbeddingRequest logs a batched embedding call
func (rl *RunLogger) LogEmbeddingRequest(texts int) {
	rl.Logf("=== EMBEDDING REQUEST ===\n")
	rl.Logf("Texts: %d\n", texts)
}

// LogEmbeddingResponse logs the shape of the returned vectors
func (rl *RunLogger) LogEmbeddingResponse(vectors, dims int) {
	rl.Logf("=== EMBEDDING RESPONSE ===\n")
	rl.Logf("Vectors: %d x %d\n\n", vectors, dims)
}

// LogDuplicate logs one duplicate decision
func (rl *RunLogger) LogDuplicate(p DuplicatePair) {
	switch p.Kind {
	case DuplicateExact:
		rl.Logf("Question %s: EXACT DUPLICATE of %s\n", p.First, p.Second)
	default:
		rl.Logf("Question %s: NEAR DUPLICATE of %s (similarity %.4f)\n", p.Second, p.First, p.Similarity)
	}
}

// Close writes the footer and closes the file
func (rl *RunLogger) Close() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.file == nil {
		return nil
	}
	rl.logf("=== Analysis Complete ===\n")
	rl.logf("Completed: %s\n", time.Now().Format(time.RFC3339))
	rl.logf("=========================\n")
	err := rl.file.Close()
	rl.file = nil
	return err
}
