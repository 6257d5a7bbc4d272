package entity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SonarSoftwareInc/importer/internal/importer"
	"github.com/SonarSoftwareInc/importer/internal/metrics"
	"github.com/SonarSoftwareInc/importer/internal/sonar"
)

type invoiceClient interface {
	Do(ctx context.Context, method, path string, body any) (*sonar.Response, error)
	GetData(ctx context.Context, path string, v any) error
}

// InvoiceRunner generates invoices backed by debit adjustments, in two
// phases: first a debit adjustment is posted to every account, then each
// successfully created debit is bundled into an invoice. A row that fails
// the debit phase is recorded once and never reaches the invoice phase.
type InvoiceRunner struct {
	client      invoiceClient
	serviceID   int
	concurrency int
	logDir      string
	logger      *slog.Logger
}

func NewInvoiceRunner(client invoiceClient, serviceID, concurrency int, logDir string, logger *slog.Logger) *InvoiceRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceRunner{
		client:      client,
		serviceID:   serviceID,
		concurrency: concurrency,
		logDir:      logDir,
		logger:      logger.With("component", "invoice_runner"),
	}
}

const invoiceEntity = "invoice_generation"

// Run executes both phases for one import file and blocks until every row
// has settled.
func (r *InvoiceRunner) Run(ctx context.Context, path string) (importer.Summary, error) {
	if err := r.checkDebitService(ctx); err != nil {
		return importer.Summary{}, err
	}

	rows, err := importer.ReadFile(path)
	if err != nil {
		return importer.Summary{}, err
	}

	validator := &importer.FileValidator{
		Entity:   "the invoice generation import",
		Required: []int{0, 1, 2, 3},
		Checks: []importer.Check{
			importer.NumericMin(1, 0.01, "invoice amount"),
		},
	}
	if err := validator.Validate(rows); err != nil {
		return importer.Summary{}, err
	}

	rec, err := importer.NewRecorder(r.logDir, invoiceEntity, r.logger)
	if err != nil {
		return importer.Summary{}, err
	}
	defer rec.Close()

	r.logger.Info("invoice generation started", "rows", len(rows))

	debited, err := r.postDebits(ctx, rows, rec)
	if err != nil {
		return rec.Summary(), err
	}
	if err := r.postInvoices(ctx, rows, debited, rec); err != nil {
		return rec.Summary(), err
	}

	summary := rec.Summary()
	if summary.Successes+summary.Failures != len(rows)+len(debited) {
		metrics.ReconciliationMismatches.WithLabelValues(invoiceEntity).Inc()
		r.logger.Warn("outcome reconciliation mismatch",
			"rows", len(rows),
			"invoiced", len(debited),
			"successes", summary.Successes,
			"failures", summary.Failures,
		)
	}

	r.logger.Info("invoice generation finished",
		"successes", summary.Successes,
		"failures", summary.Failures,
	)
	return summary, nil
}

// checkDebitService confirms the configured service is a debit adjustment
// before any row is touched.
func (r *InvoiceRunner) checkDebitService(ctx context.Context) error {
	var svc struct {
		Type        string `json:"type"`
		Application string `json:"application"`
	}
	path := fmt.Sprintf("/api/v1/system/services/%d", r.serviceID)
	if err := r.client.GetData(ctx, path, &svc); err != nil {
		return fmt.Errorf("%d is not a valid debit adjustment service.", r.serviceID)
	}
	if svc.Type != "adjustment" || svc.Application != "debit" {
		return fmt.Errorf("%d is not a valid debit adjustment service.", r.serviceID)
	}
	return nil
}

// postDebits runs phase one and returns the indices of rows whose debit was
// created.
func (r *InvoiceRunner) postDebits(ctx context.Context, rows []importer.Row, rec *importer.Recorder) ([]int, error) {
	d := importer.NewDispatcher(r.client, r.concurrency, invoiceEntity, r.logger)
	requests := importer.Produce(ctx, len(rows), func(i int) importer.Request {
		row := rows[i]
		return importer.Request{
			Index:  i,
			Method: http.MethodPost,
			Path:   fmt.Sprintf("/api/v1/accounts/%d/services", atoi(row.Field(0))),
			Body: map[string]any{
				"account_id": atoi(row.Field(0)),
				"service_id": r.serviceID,
				"amount":     atof(row.Field(1)),
			},
		}
	})

	var debited []int
	err := d.Dispatch(ctx, requests, func(o importer.Outcome) {
		if o.OK {
			metrics.ImportSuccesses.WithLabelValues(invoiceEntity).Inc()
			rec.Success(fmt.Sprintf("Import succeeded for account ID %s", rows[o.Index].Field(0)))
			debited = append(debited, o.Index)
			return
		}
		metrics.ImportFailures.WithLabelValues(invoiceEntity).Inc()
		rec.Failure(rows[o.Index], o.Reason)
	})
	return debited, err
}

// postInvoices runs phase two over the rows that survived phase one.
func (r *InvoiceRunner) postInvoices(ctx context.Context, rows []importer.Row, debited []int, rec *importer.Recorder) error {
	d := importer.NewDispatcher(r.client, r.concurrency, invoiceEntity, r.logger)
	requests := importer.Produce(ctx, len(debited), func(i int) importer.Request {
		row := rows[debited[i]]
		body, err := r.invoicePayload(ctx, row)
		if err != nil {
			return importer.Request{Index: i, Err: err}
		}
		return importer.Request{
			Index:  i,
			Method: http.MethodPost,
			Path:   fmt.Sprintf("/api/v1/accounts/%d/invoices", atoi(row.Field(0))),
			Body:   body,
		}
	})

	return d.Dispatch(ctx, requests, func(o importer.Outcome) {
		row := rows[debited[o.Index]]
		if o.OK {
			metrics.ImportSuccesses.WithLabelValues(invoiceEntity).Inc()
			rec.Success(fmt.Sprintf("Invoice generation succeeded for account ID %s", row.Field(0)))
			return
		}
		metrics.ImportFailures.WithLabelValues(invoiceEntity).Inc()
		rec.Failure(row, o.Reason)
	})
}

// invoicePayload finds the debit created in phase one and wraps it in an
// invoice request.
func (r *InvoiceRunner) invoicePayload(ctx context.Context, row importer.Row) (map[string]any, error) {
	var debits []struct {
		ID        int     `json:"id"`
		Amount    float64 `json:"amount"`
		ServiceID int     `json:"service_id"`
	}
	path := fmt.Sprintf("/api/v1/accounts/%d/transactions/debits", atoi(row.Field(0)))
	if err := r.client.GetData(ctx, path, &debits); err != nil {
		return nil, fmt.Errorf("looking up debits for account ID %s: %w", row.Field(0), err)
	}

	amount := atof(row.Field(1))
	for _, debit := range debits {
		if debit.Amount == amount && debit.ServiceID == r.serviceID {
			return map[string]any{
				"account_id": atoi(row.Field(0)),
				"debits":     []int{debit.ID},
				"due_date":   row.Field(3),
				"date":       row.Field(2),
			}, nil
		}
	}
	return nil, fmt.Errorf("Couldn't find debit for account ID %s", row.Field(0))
}
