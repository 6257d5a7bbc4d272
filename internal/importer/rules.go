package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RowError is a structural violation found during the pre-flight validation
// pass. It is fatal to the whole import: no request is dispatched after one
// is raised. Row and Column are 1-based, matching how operators count
// columns in a spreadsheet.
type RowError struct {
	Row     int
	Column  int
	Message string
}

func (e *RowError) Error() string {
	return e.Message
}

func requiredColumnError(entity string, row, column int) *RowError {
	return &RowError{
		Row:    row,
		Column: column,
		Message: fmt.Sprintf(
			"In %s, column number %d is required, and it is empty on row %d.",
			entity, column, row,
		),
	}
}

// Check inspects one row during the pre-flight pass. n is the 1-based row
// number. A nil return means the row passed.
type Check func(row Row, n int) *RowError

// FileValidator runs the structural pre-flight pass for one entity type:
// required columns first, then domain checks, in a single scan over the file.
type FileValidator struct {
	// Entity is the wording used in failure messages, e.g. "the account import".
	Entity string
	// Required holds 0-based column indices that must be non-blank on every row.
	Required []int
	Checks   []Check
}

// Validate scans every row before any request is built. The first violation
// fails the entire import.
func (v *FileValidator) Validate(rows []Row) error {
	for i, row := range rows {
		n := i + 1
		for _, col := range v.Required {
			if row.Field(col) == "" {
				return requiredColumnError(v.Entity, n, col+1)
			}
		}
		for _, check := range v.Checks {
			if err := check(row, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Numeric fails when the column is non-blank and not a number.
func Numeric(col int, describe string) Check {
	return func(row Row, n int) *RowError {
		v := row.Field(col)
		if v == "" {
			return nil
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return &RowError{Row: n, Column: col + 1,
				Message: fmt.Sprintf("%s is not a valid %s in row %d.", v, describe, n)}
		}
		return nil
	}
}

// NumericMin fails when the column is non-blank and not a number >= min.
func NumericMin(col int, min float64, describe string) Check {
	return func(row Row, n int) *RowError {
		v := row.Field(col)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < min {
			return &RowError{Row: n, Column: col + 1,
				Message: fmt.Sprintf("%s is not a valid %s in row %d.", v, describe, n)}
		}
		return nil
	}
}

// OneOf fails when the column is non-blank and not one of the allowed values.
func OneOf(col int, allowed []string, describe string) Check {
	return func(row Row, n int) *RowError {
		v := strings.ToLower(row.Field(col))
		if v == "" {
			return nil
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return &RowError{Row: n, Column: col + 1,
			Message: fmt.Sprintf("%s is not a valid %s in row %d, must be one of '%s'.",
				row.Field(col), describe, n, strings.Join(allowed, "', '"))}
	}
}

// IntList fails when the column is non-blank and not a single integer or a
// comma-separated set of integers.
func IntList(col int, describe string) Check {
	return func(row Row, n int) *RowError {
		v := row.Field(col)
		if v == "" {
			return nil
		}
		for _, part := range strings.Split(v, ",") {
			if _, err := strconv.Atoi(strings.TrimSpace(part)); err != nil {
				return &RowError{Row: n, Column: col + 1,
					Message: fmt.Sprintf("There is data entered in column %d for row %d, but it does not match the required format. This column is for %s, and must contain either a single integer, or a set of integers separated by commas. %s is not a valid entry.",
						col+1, n, describe, strings.TrimSpace(part))}
			}
		}
		return nil
	}
}

// BothOrNeither fails when exactly one of the two columns is blank.
func BothOrNeither(colA, colB int, describe string) Check {
	return func(row Row, n int) *RowError {
		a, b := row.Field(colA), row.Field(colB)
		if (a == "") != (b == "") {
			return &RowError{Row: n, Column: colA + 1,
				Message: fmt.Sprintf("Row %d has %s, but not both. If one is supplied, the other must be also.", n, describe)}
		}
		return nil
	}
}

// FutureDate fails when the column is non-blank and not a parseable
// YYYY-MM-DD date strictly in the future. nowFn is injectable for tests.
func FutureDate(col int, describe string, nowFn func() time.Time) Check {
	if nowFn == nil {
		nowFn = time.Now
	}
	return func(row Row, n int) *RowError {
		v := row.Field(col)
		if v == "" {
			return nil
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return &RowError{Row: n, Column: col + 1,
				Message: fmt.Sprintf("%s is not a valid %s in row %d, it must be a date formatted as Y-M-D (e.g. 2016-06-01).", v, describe, n)}
		}
		if !t.After(nowFn()) {
			return &RowError{Row: n, Column: col + 1,
				Message: fmt.Sprintf("The %s must be in the future. It is not on row %d.", describe, n)}
		}
		return nil
	}
}
