package entity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SonarSoftwareInc/importer/internal/importer"
)

// noteEntities are the record types notes can attach to.
var noteEntities = map[string]bool{
	"accounts": true,
}

// Notes imports notes onto an existing entity, currently accounts only.
type Notes struct {
	entity string
}

func NewNotes(entity string) (*Notes, error) {
	if !noteEntities[entity] {
		return nil, fmt.Errorf("%s is not a valid note entity.", entity)
	}
	return &Notes{entity: entity}, nil
}

func (n *Notes) Name() string { return n.entity + "_note" }

func (n *Notes) Validator() *importer.FileValidator {
	return &importer.FileValidator{
		Entity:   "the note import",
		Required: []int{0, 1, 2},
	}
}

func (n *Notes) Request(ctx context.Context, row importer.Row) (string, string, any, error) {
	path := fmt.Sprintf("/api/v1/notes/%s/%d", n.entity, atoi(row.Field(0)))
	body := map[string]any{
		"category": row.Field(2),
		"message":  row.Field(1),
	}
	return http.MethodPost, path, body, nil
}

func (n *Notes) SuccessLine(row importer.Row) string {
	return fmt.Sprintf("Import succeeded for account ID %s", row.Field(0))
}
