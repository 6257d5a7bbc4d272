package entity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SonarSoftwareInc/importer/internal/importer"
)

// NextBillDates moves existing accounts onto a new next bill date. The date
// must be strictly in the future.
type NextBillDates struct {
	nowFn func() time.Time
}

func NewNextBillDates() *NextBillDates {
	return &NextBillDates{nowFn: time.Now}
}

func (n *NextBillDates) Name() string { return "account_next_bill_date" }

func (n *NextBillDates) Validator() *importer.FileValidator {
	return &importer.FileValidator{
		Entity:   "the account next bill date update",
		Required: []int{0, 1},
		Checks: []importer.Check{
			importer.Numeric(0, "account ID"),
			importer.FutureDate(1, "next bill date", n.nowFn),
		},
	}
}

func (n *NextBillDates) Request(ctx context.Context, row importer.Row) (string, string, any, error) {
	path := fmt.Sprintf("/api/v1/accounts/%d", atoi(row.Field(0)))
	body := map[string]any{"next_bill_date": row.Field(1)}
	return http.MethodPost, path, body, nil
}

func (n *NextBillDates) SuccessLine(row importer.Row) string {
	return fmt.Sprintf("Update succeeded for account ID %s", row.Field(0))
}
