package entity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SonarSoftwareInc/importer/internal/address"
	"github.com/SonarSoftwareInc/importer/internal/importer"
)

// Accounts imports master and sub-accounts. Every row's address passes
// through the resolver before the payload is built; a row whose address
// cannot be resolved fails, it does not abort the batch.
type Accounts struct {
	resolver *address.Resolver
	nowFn    func() time.Time
}

func NewAccounts(resolver *address.Resolver) *Accounts {
	return &Accounts{resolver: resolver, nowFn: time.Now}
}

func (a *Accounts) Name() string { return "account" }

func (a *Accounts) Validator() *importer.FileValidator {
	return &importer.FileValidator{
		Entity:   "the account import",
		Required: []int{0, 1, 2, 3, 7, 9, 10, 13},
		Checks: []importer.Check{
			importer.IntList(4, "groups"),
		},
	}
}

// Order dispatches master accounts before accounts that declare
// sub-accounts, so a sub-account reference can only point at an account that
// already exists.
func (a *Accounts) Order(rows []importer.Row) []importer.Row {
	ordered := make([]importer.Row, 0, len(rows))
	var withSubs []importer.Row
	for _, row := range rows {
		if row.Field(5) != "" {
			withSubs = append(withSubs, row)
			continue
		}
		ordered = append(ordered, row)
	}
	return append(ordered, withSubs...)
}

func (a *Accounts) Request(ctx context.Context, row importer.Row) (string, string, any, error) {
	body, err := a.payload(ctx, row)
	if err != nil {
		return "", "", nil, err
	}
	return http.MethodPost, "/api/v1/accounts", body, nil
}

func (a *Accounts) SuccessLine(row importer.Row) string {
	return fmt.Sprintf("Import succeeded for account ID %s", row.Field(0))
}

func (a *Accounts) payload(ctx context.Context, row importer.Row) (map[string]any, error) {
	contactName := row.Field(16)
	if contactName == "" {
		contactName = row.Field(1)
	}

	payload := map[string]any{
		"id":                atoi(row.Field(0)),
		"name":              row.Field(1),
		"account_type_id":   atoi(row.Field(2)),
		"account_status_id": atoi(row.Field(3)),
		"contact_name":      contactName,
	}

	resolved, err := a.resolver.Resolve(ctx, a.resolver.FromRow(row))
	if err != nil {
		return nil, err
	}
	for k, v := range resolved.PayloadFields() {
		payload[k] = v
	}

	if v := row.Field(4); v != "" {
		payload["account_groups"] = splitList(v)
	}
	if v := row.Field(5); v != "" {
		payload["sub_accounts"] = splitList(v)
	}
	// A next bill date in the past is silently dropped; the account then
	// bills on the instance default.
	if v := row.Field(6); v != "" {
		if t, perr := time.Parse("2006-01-02", v); perr == nil && t.After(a.nowFn()) {
			payload["next_bill_date"] = t.Format("2006-01-02")
		}
	}
	if v := row.Field(17); v != "" {
		payload["role"] = v
	}
	if v := row.Field(18); v != "" {
		payload["email_address"] = v
	}
	if v := row.Field(19); v != "" {
		payload["email_message_categories"] = strings.Split(v, ",")
	} else {
		payload["email_message_categories"] = []string{}
	}

	phones := phoneColumns{Work: 20, WorkExt: 21, Home: 22, Mobile: 23, Fax: 24, StripNonDigits: true}
	if numbers := phones.build(row); numbers != nil {
		payload["phone_numbers"] = numbers
	}

	return payload, nil
}
