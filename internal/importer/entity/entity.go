// Package entity maps import file rows onto API requests, one implementation
// per importable record type. Payloads carry only the columns that are
// present; the API is the final validator for anything beyond the structural
// pre-flight checks.
package entity

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/SonarSoftwareInc/importer/internal/importer"
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// truthy mirrors loose boolean columns: blank and "0" are false, anything
// else is true.
func truthy(s string) bool {
	return s != "" && s != "0"
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// phoneColumns is the column layout of a four-number phone block: work with
// an extension, then home, mobile and fax without one.
type phoneColumns struct {
	Work, WorkExt, Home, Mobile, Fax int

	// StripNonDigits reduces numbers to bare digits before submission.
	StripNonDigits bool
}

func (p phoneColumns) build(row importer.Row) map[string]any {
	clean := func(s string) string {
		if p.StripNonDigits {
			return nonDigits.ReplaceAllString(s, "")
		}
		return s
	}

	numbers := make(map[string]any)
	if v := row.Field(p.Work); v != "" {
		numbers["work"] = map[string]any{
			"number":    clean(v),
			"extension": row.Field(p.WorkExt),
		}
	}
	single := func(kind string, col int) {
		if v := row.Field(col); v != "" {
			numbers[kind] = map[string]any{
				"number":    clean(v),
				"extension": nil,
			}
		}
	}
	single("home", p.Home)
	single("mobile", p.Mobile)
	single("fax", p.Fax)

	if len(numbers) == 0 {
		return nil
	}
	return numbers
}
