package entity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SonarSoftwareInc/importer/internal/importer"
)

// BillingParameters patches per-account billing configuration. Every column
// past the account ID is optional; blanks leave the existing value alone.
type BillingParameters struct {
	nowFn func() time.Time
}

func NewBillingParameters() *BillingParameters {
	return &BillingParameters{nowFn: time.Now}
}

func (b *BillingParameters) Name() string { return "account_billing_parameter" }

func (b *BillingParameters) Validator() *importer.FileValidator {
	return &importer.FileValidator{
		Entity:   "the account billing parameters import",
		Required: []int{0},
		Checks: []importer.Check{
			dayOfMonth(1, "bill day"),
			importer.NumericMin(2, 0, "due days value"),
			importer.NumericMin(3, 0, "grace days value"),
			importer.FutureDate(4, "grace until", b.nowFn),
			importer.NumericMin(5, 0, "months to bill value"),
			dayOfMonth(8, "separate invoice day"),
			importer.NumericMin(9, 0, "auto pay days value"),
			importer.OneOf(10, []string{"invoice", "statement"}, "bill mode"),
		},
	}
}

func (b *BillingParameters) Request(ctx context.Context, row importer.Row) (string, string, any, error) {
	path := fmt.Sprintf("/api/v1/accounts/%d/billing_parameters", atoi(row.Field(0)))
	return http.MethodPatch, path, b.payload(row), nil
}

func (b *BillingParameters) SuccessLine(row importer.Row) string {
	return fmt.Sprintf("Import succeeded for account ID %s", row.Field(0))
}

func (b *BillingParameters) payload(row importer.Row) map[string]any {
	payload := map[string]any{}

	setInt := func(key string, col int) {
		if v := row.Field(col); v != "" {
			payload[key] = atoi(v)
		}
	}
	setInt("bill_day", 1)
	setInt("due_days", 2)
	setInt("grace_days", 3)
	if v := row.Field(4); v != "" {
		payload["grace_until"] = v
	}
	setInt("months_to_bill", 5)
	if v := row.Field(6); v != "" {
		payload["tax_exempt"] = truthy(v)
	}
	if v := row.Field(7); v != "" {
		payload["print_invoice"] = truthy(v)
	}
	if v := row.Field(8); v != "" {
		payload["separate_invoice_day_enabled"] = true
		payload["invoice_day"] = atoi(v)
	}
	setInt("auto_pay_days", 9)
	if v := row.Field(10); v != "" {
		payload["bill_mode"] = strings.ToLower(v)
	}

	return payload
}

// dayOfMonth fails when the column is non-blank and not an integer in 1..28.
// Days past 28 are rejected so the value exists in every month.
func dayOfMonth(col int, describe string) importer.Check {
	return func(row importer.Row, n int) *importer.RowError {
		v := row.Field(col)
		if v == "" {
			return nil
		}
		day := atoi(v)
		if day < 1 || day > 28 {
			return &importer.RowError{Row: n, Column: col + 1,
				Message: fmt.Sprintf("%s is an invalid %s in row %d.", v, describe, n)}
		}
		return nil
	}
}
