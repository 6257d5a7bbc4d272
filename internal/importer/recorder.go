package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/SonarSoftwareInc/importer/internal/metrics"
	"github.com/google/uuid"
)

// Summary is the aggregate result of one import run, returned once at the
// end. Never exposed mid-run.
type Summary struct {
	Successes     int
	Failures      int
	SuccessLog    string
	FailureLog    string
	CacheHits     int
	CacheMisses   int
	ValidatedFile string
}

const logWriteAttempts = 3

// Recorder accumulates per-row outcomes and writes the success and failure
// logs. Failure lines carry the original row plus the error string in the
// input's CSV format, so corrected rows can be re-imported directly. It must
// only be driven from the dispatcher's single outcome consumer.
type Recorder struct {
	successes int
	failures  int

	successFile *os.File
	failureFile *os.File
	successW    io.Writer
	failureW    io.Writer

	logger  *slog.Logger
	sleepFn func(time.Duration)
}

// NewRecorder creates the log directory if needed and opens a fresh pair of
// uniquely named logs for this run.
func NewRecorder(dir, entity string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	run := uuid.NewString()[:8]
	successPath := filepath.Join(dir, fmt.Sprintf("%s_import_successes_%s.log", entity, run))
	failurePath := filepath.Join(dir, fmt.Sprintf("%s_import_failures_%s.csv", entity, run))

	successFile, err := os.Create(successPath)
	if err != nil {
		return nil, fmt.Errorf("create success log: %w", err)
	}
	failureFile, err := os.Create(failurePath)
	if err != nil {
		successFile.Close()
		return nil, fmt.Errorf("create failure log: %w", err)
	}

	return &Recorder{
		successFile: successFile,
		failureFile: failureFile,
		successW:    successFile,
		failureW:    failureFile,
		logger:      logger.With("component", "recorder", "entity", entity),
		sleepFn:     time.Sleep,
	}, nil
}

// Success counts the row and appends one confirmation line to the success log.
func (r *Recorder) Success(line string) {
	r.successes++
	r.retryWrite("success log", func() error {
		_, err := fmt.Fprintln(r.successW, line)
		return err
	})
}

// Failure counts the row and appends the original row plus the derived error
// string to the failure log. The record is rendered to CSV once, in memory,
// so each retry hits the file with fresh bytes instead of a csv.Writer whose
// buffered error is sticky across attempts.
func (r *Recorder) Failure(row Row, reason string) {
	r.failures++
	record := append(append(make([]string, 0, len(row)+1), row...), reason)
	line := renderCSVLine(record)
	r.retryWrite("failure log", func() error {
		_, err := r.failureW.Write(line)
		return err
	})
}

func renderCSVLine(record []string) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(record) // writes to a bytes.Buffer cannot fail
	w.Flush()
	return buf.Bytes()
}

// retryWrite retries a log write a bounded number of times. Losing a log line
// loses the only record of that row's fate, so writes are never silently
// dropped on the first error.
func (r *Recorder) retryWrite(target string, write func() error) {
	var err error
	for attempt := 1; attempt <= logWriteAttempts; attempt++ {
		if err = write(); err == nil {
			return
		}
		metrics.LogWriteRetries.Inc()
		r.logger.Warn("log write failed, retrying", "target", target, "attempt", attempt, "error", err)
		r.sleepFn(time.Duration(attempt) * 50 * time.Millisecond)
	}
	r.logger.Error("log write dropped after retries", "target", target, "error", err)
}

func (r *Recorder) Counts() (successes, failures int) {
	return r.successes, r.failures
}

func (r *Recorder) Summary() Summary {
	return Summary{
		Successes:  r.successes,
		Failures:   r.failures,
		SuccessLog: r.successFile.Name(),
		FailureLog: r.failureFile.Name(),
	}
}

func (r *Recorder) Close() error {
	ferr := r.failureFile.Close()
	serr := r.successFile.Close()
	if ferr != nil {
		return ferr
	}
	return serr
}
