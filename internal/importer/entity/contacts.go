package entity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/SonarSoftwareInc/importer/internal/importer"
)

// Contacts imports additional contacts onto existing accounts. Imported
// contacts are never primary; the primary contact is created with the
// account itself.
type Contacts struct{}

func NewContacts() *Contacts { return &Contacts{} }

func (c *Contacts) Name() string { return "contact" }

func (c *Contacts) Validator() *importer.FileValidator {
	return &importer.FileValidator{
		Entity:   "the contact import",
		Required: []int{0, 1},
		Checks: []importer.Check{
			importer.BothOrNeither(10, 11, "either a username or a password"),
		},
	}
}

func (c *Contacts) Request(ctx context.Context, row importer.Row) (string, string, any, error) {
	path := fmt.Sprintf("/api/v1/accounts/%d/contacts", atoi(row.Field(0)))
	return http.MethodPost, path, c.payload(row), nil
}

func (c *Contacts) SuccessLine(row importer.Row) string {
	return fmt.Sprintf("Import succeeded for account ID %s", row.Field(0))
}

func (c *Contacts) payload(row importer.Row) map[string]any {
	payload := map[string]any{
		"id":      atoi(row.Field(0)),
		"name":    row.Field(1),
		"primary": false,
	}

	if v := row.Field(2); v != "" {
		payload["role"] = v
	}
	if v := row.Field(3); v != "" {
		payload["email_address"] = v
	}
	if v := row.Field(9); v != "" {
		payload["email_message_categories"] = strings.Split(v, ",")
	} else {
		payload["email_message_categories"] = []string{}
	}

	phones := phoneColumns{Work: 4, WorkExt: 5, Home: 6, Mobile: 7, Fax: 8}
	if numbers := phones.build(row); numbers != nil {
		payload["phone_numbers"] = numbers
	}

	if v := row.Field(10); v != "" {
		payload["username"] = v
		payload["password"] = row.Field(11)
	}

	return payload
}
