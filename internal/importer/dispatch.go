package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SonarSoftwareInc/importer/internal/metrics"
	"github.com/SonarSoftwareInc/importer/internal/sonar"
	"golang.org/x/sync/errgroup"
)

// A response counts as fulfilled only up to 201; anything higher takes the
// failure path even without a transport error.
const fulfilledStatusMax = 201

// SentinelNoResponse is the recorded reason when a remote call produced no
// response at all (timeout, connection failure).
const SentinelNoResponse = "No response returned from Sonar."

// Request describes one remote call bound to its originating row. Index is
// the sole correlation key back to that row.
type Request struct {
	Index  int
	Method string
	Path   string
	Body   any

	// Err short-circuits dispatch: the request is never sent and settles as a
	// failed outcome carrying this reason. Used when payload building fails,
	// so that every row still gets exactly one outcome.
	Err error
}

// Outcome is the terminal result for one dispatched request. Body carries
// the raw response payload of fulfilled requests for callers that need to
// decode it; it is nil on failures.
type Outcome struct {
	Index  int
	Status int
	OK     bool
	Reason string
	Body   []byte
}

// Doer executes one remote call. Satisfied by *sonar.Client.
type Doer interface {
	Do(ctx context.Context, method, path string, body any) (*sonar.Response, error)
}

// Dispatcher submits row-derived requests against the remote API under a
// fixed concurrency ceiling, correlating every response back to its
// originating row regardless of completion order.
type Dispatcher struct {
	client Doer
	limit  int
	entity string
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewDispatcher(client Doer, limit int, entity string, logger *slog.Logger) *Dispatcher {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client: client,
		limit:  limit,
		entity: entity,
		logger: logger.With("component", "dispatcher", "entity", entity),
		nowFn:  time.Now,
	}
}

// Dispatch drains requests under the concurrency ceiling and hands every
// outcome to handle from a single goroutine, so handlers may touch log files
// and counters without locking. It blocks until the entire sequence has
// settled. The returned error is non-nil only when the context was cancelled
// mid-flight; per-request failures are outcomes, not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, requests <-chan Request, handle func(Outcome)) error {
	outcomes := make(chan Outcome)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.limit; i++ {
		g.Go(func() error {
			return d.worker(gctx, requests, outcomes)
		})
	}

	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		close(outcomes)
		done <- err
	}()

	for o := range outcomes {
		handle(o)
	}
	return <-done
}

func (d *Dispatcher) worker(ctx context.Context, requests <-chan Request, outcomes chan<- Outcome) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			o := d.execute(ctx, req)
			select {
			case outcomes <- o:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, req Request) Outcome {
	if req.Err != nil {
		return Outcome{Index: req.Index, Reason: req.Err.Error()}
	}

	metrics.RowsDispatched.WithLabelValues(d.entity).Inc()
	metrics.RequestsInFlight.Inc()
	start := d.nowFn()
	resp, err := d.client.Do(ctx, req.Method, req.Path, req.Body)
	metrics.RequestsInFlight.Dec()
	metrics.RequestLatency.WithLabelValues(d.entity).Observe(time.Since(start).Seconds())

	if err != nil {
		d.logger.Debug("request rejected without response", "index", req.Index, "error", err)
		return Outcome{Index: req.Index, Reason: SentinelNoResponse}
	}

	if resp.StatusCode > fulfilledStatusMax {
		reason := sonar.FlattenMessage(resp.Body)
		if reason == "" {
			reason = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return Outcome{Index: req.Index, Status: resp.StatusCode, Reason: reason}
	}

	return Outcome{Index: req.Index, Status: resp.StatusCode, OK: true, Body: resp.Body}
}

// Produce lazily feeds build's requests into an unbuffered channel, so at
// most the in-flight requests plus one ever exist at a time even for files
// with large per-row bodies.
func Produce(ctx context.Context, count int, build func(i int) Request) <-chan Request {
	ch := make(chan Request)
	go func() {
		defer close(ch)
		for i := 0; i < count; i++ {
			select {
			case ch <- build(i):
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
