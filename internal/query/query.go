// Package query defines the executor contract for validated statements.
package query

import (
	"context"
	"time"
)

type Request struct {
	SQL string
}

// Result holds the rows of one statement. Columns come from the driver in
// result order; RowCount always equals len(Rows). Truncated is set when the
// statement produced more than RowLimit rows and only RowLimit were kept.
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	RowLimit  int              `json:"row_limit"`
	Duration  time.Duration    `json:"-"`
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
