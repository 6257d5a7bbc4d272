package importer

import (
	"context"
	"log/slog"

	"github.com/SonarSoftwareInc/importer/internal/metrics"
)

// Entity describes one importable record type: its pre-flight validation and
// its row-to-request mapping. One implementation per record type, selected by
// the caller.
type Entity interface {
	// Name is a short identifier used for log file names and metrics labels.
	Name() string
	// Validator returns the structural pre-flight pass, or nil when the
	// entity has none.
	Validator() *FileValidator
	// Request maps one row to its remote call. A returned error is recorded
	// as a row failure, never a batch abort.
	Request(ctx context.Context, row Row) (method, path string, body any, err error)
	// SuccessLine is the confirmation written to the success log for a row.
	SuccessLine(row Row) string
}

// Orderer lets an entity reorder rows before dispatch, e.g. master accounts
// before accounts that reference sub-accounts.
type Orderer interface {
	Order(rows []Row) []Row
}

// Preparer runs entity setup that needs remote data before any row is
// dispatched. A returned error aborts the import pre-flight.
type Preparer interface {
	Prepare(ctx context.Context, rows []Row) error
}

// Importer wires the engine together: row source, pre-flight validation,
// bounded-concurrency dispatch, and outcome recording.
type Importer struct {
	client      Doer
	concurrency int
	logDir      string
	logger      *slog.Logger
}

func New(client Doer, concurrency int, logDir string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		client:      client,
		concurrency: concurrency,
		logDir:      logDir,
		logger:      logger,
	}
}

func (im *Importer) Client() Doer     { return im.client }
func (im *Importer) Concurrency() int { return im.concurrency }
func (im *Importer) LogDir() string   { return im.logDir }
func (im *Importer) Logger() *slog.Logger {
	return im.logger
}

// Run imports one file for one entity type. Structural validation failures
// abort before any network call; per-row remote failures are recorded and the
// batch continues. Blocks until every row has a terminal outcome.
func (im *Importer) Run(ctx context.Context, ent Entity, path string) (Summary, error) {
	rows, err := ReadFile(path)
	if err != nil {
		return Summary{}, err
	}

	if v := ent.Validator(); v != nil {
		if err := v.Validate(rows); err != nil {
			return Summary{}, err
		}
	}

	if p, ok := ent.(Preparer); ok {
		if err := p.Prepare(ctx, rows); err != nil {
			return Summary{}, err
		}
	}

	if o, ok := ent.(Orderer); ok {
		rows = o.Order(rows)
	}

	rec, err := NewRecorder(im.logDir, ent.Name(), im.logger)
	if err != nil {
		return Summary{}, err
	}
	defer rec.Close()

	im.logger.Info("import started", "entity", ent.Name(), "rows", len(rows))

	d := NewDispatcher(im.client, im.concurrency, ent.Name(), im.logger)
	requests := Produce(ctx, len(rows), func(i int) Request {
		method, reqPath, body, err := ent.Request(ctx, rows[i])
		if err != nil {
			return Request{Index: i, Err: err}
		}
		return Request{Index: i, Method: method, Path: reqPath, Body: body}
	})

	err = d.Dispatch(ctx, requests, func(o Outcome) {
		if o.OK {
			metrics.ImportSuccesses.WithLabelValues(ent.Name()).Inc()
			rec.Success(ent.SuccessLine(rows[o.Index]))
		} else {
			metrics.ImportFailures.WithLabelValues(ent.Name()).Inc()
			rec.Failure(rows[o.Index], o.Reason)
		}
	})

	summary := rec.Summary()
	if err != nil {
		return summary, err
	}

	// Reconciliation check: a mismatch signals a bookkeeping bug in the
	// concurrent outcome handling, not a bad input file.
	if summary.Successes+summary.Failures != len(rows) {
		metrics.ReconciliationMismatches.WithLabelValues(ent.Name()).Inc()
		im.logger.Warn("outcome reconciliation mismatch",
			"entity", ent.Name(),
			"rows", len(rows),
			"successes", summary.Successes,
			"failures", summary.Failures,
		)
	}

	im.logger.Info("import finished",
		"entity", ent.Name(),
		"successes", summary.Successes,
		"failures", summary.Failures,
	)
	return summary, nil
}
