// Package sqldb executes validated statements over database/sql.
package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/NopparootSuree/AI-Agent/internal/failure"
	"github.com/NopparootSuree/AI-Agent/internal/query"
)

const (
	defaultMaxRows      = 500
	defaultQueryTimeout = 15 * time.Second
)

type Config struct {
	MaxRows      int
	QueryTimeout time.Duration
	// ReadOnlyTx asks the driver for a read-only transaction. DuckDB does not
	// support it; database.Open opens DuckDB files with access_mode=READ_ONLY.
	ReadOnlyTx bool
}

type Engine struct {
	db         *sql.DB
	maxRows    int
	timeout    time.Duration
	readOnlyTx bool
	builder    sq.StatementBuilderType
}

func NewEngine(db *sql.DB, cfg Config) *Engine {
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &Engine{
		db:         db,
		maxRows:    maxRows,
		timeout:    timeout,
		readOnlyTx: cfg.ReadOnlyTx,
		builder:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := strings.TrimSpace(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	sqlText = stripTrailingSemicolons(sqlText)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: e.readOnlyTx})
	if err != nil {
		return query.Result{}, failure.Wrap(failure.DatabaseUnavailable, err, "could not open a database transaction")
	}
	// Nothing the executor runs is ever committed.
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, e.classify(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, e.classify(ctx, err)
	}

	resultRows := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if len(resultRows) == e.maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, e.classify(ctx, err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, e.classify(ctx, err)
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Truncated: truncated,
		RowLimit:  e.maxRows,
		Duration:  time.Since(start),
	}, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return failure.Wrap(failure.DatabaseUnavailable, err, "database unreachable")
	}
	return nil
}

// ListColumns returns the live column names of table in ordinal order.
// An empty namespace matches any schema.
func (e *Engine) ListColumns(ctx context.Context, namespace, table string) ([]string, error) {
	builder := e.builder.
		Select("column_name").
		From("information_schema.columns").
		Where(sq.Expr("lower(table_name) = lower(?)", table)).
		OrderBy("ordinal_position")
	if namespace != "" {
		builder = builder.Where(sq.Expr("lower(table_schema) = lower(?)", namespace))
	}
	sqlText, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build column query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, e.classify(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, e.classify(ctx, err)
	}
	return columns, nil
}

// classify maps driver errors onto DatabaseUnavailable for connectivity
// problems and QueryExecutionError for everything the engine rejected.
func (e *Engine) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failure.Wrap(failure.QueryExecutionError, err, fmt.Sprintf("query did not finish within %s", e.timeout))
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return failure.Wrap(failure.DatabaseUnavailable, err, "could not connect to the database")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return failure.Wrap(failure.DatabaseUnavailable, err, "database connection lost")
		}
		return failure.Wrap(failure.QueryExecutionError, err, pgErr.Message)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return failure.Wrap(failure.DatabaseUnavailable, err, "database connection lost")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return failure.Wrap(failure.DatabaseUnavailable, err, "database connection lost")
	}
	return failure.Wrap(failure.QueryExecutionError, err, err.Error())
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case interface{ Float64() float64 }:
		// DuckDB decimals.
		return typed.Float64()
	default:
		return typed
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
