package entity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/SonarSoftwareInc/importer/internal/importer"
)

// valid technology codes per the ANSI broadband reporting categories the API
// accepts.
var technologyCodes = []string{"0", "10", "20", "30", "40", "50", "60", "70", "90"}

// Services imports system-level service definitions.
type Services struct{}

func NewServices() *Services { return &Services{} }

func (s *Services) Name() string { return "service" }

func (s *Services) Validator() *importer.FileValidator {
	return &importer.FileValidator{
		Entity:   "the service import",
		Required: []int{0, 1, 2, 3, 6},
		Checks: []importer.Check{
			importer.OneOf(1, []string{"one time", "recurring", "expiring"}, "service type"),
			importer.OneOf(2, []string{"credit", "debit"}, "application"),
			importer.NumericMin(3, 0, "service amount"),
			importer.NumericMin(4, 1, "number of times to run"),
			importer.IntList(5, "tax IDs"),
			importer.NumericMin(7, 8, "download in kilobits"),
			importer.NumericMin(8, 8, "upload in kilobits"),
			importer.OneOf(9, technologyCodes, "technology code"),
			importer.NumericMin(10, 1, "usage based billing policy ID"),
			importer.NumericMin(11, 1, "general ledger code ID"),
			importer.NumericMin(12, 0, "tax exemption amount"),
		},
	}
}

func (s *Services) Request(ctx context.Context, row importer.Row) (string, string, any, error) {
	return http.MethodPost, "/api/v1/system/services", s.payload(row), nil
}

func (s *Services) SuccessLine(row importer.Row) string {
	return fmt.Sprintf("Import succeeded for service %s", row.Field(0))
}

func (s *Services) payload(row importer.Row) map[string]any {
	payload := map[string]any{
		"active":       true,
		"name":         row.Field(0),
		"type":         strings.ToLower(row.Field(1)),
		"application":  strings.ToLower(row.Field(2)),
		"amount":       atof(row.Field(3)),
		"data_service": truthy(row.Field(6)),
	}

	if v := row.Field(4); v != "" {
		payload["times_to_run"] = atoi(v)
	}
	if v := row.Field(5); v != "" {
		payload["taxes"] = splitList(v)
	}
	if v := row.Field(7); v != "" {
		payload["download_in_kilobits"] = atoi(v)
	}
	if v := row.Field(8); v != "" {
		payload["upload_in_kilobits"] = atoi(v)
	}
	if v := row.Field(9); v != "" {
		payload["technology_code"] = atoi(v)
	}
	if v := row.Field(10); v != "" {
		payload["usage_based_billing_policy_id"] = atoi(v)
	}
	if v := row.Field(11); v != "" {
		payload["general_ledger_code_id"] = atoi(v)
	}
	if v := row.Field(12); v != "" {
		payload["tax_exemption_amount"] = atof(v)
	}

	return payload
}
