package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestOpenRequiresDSNForPgx(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{Driver: DriverPgx}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{Driver: "odbc", DSN: "x"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenDuckDBInMemory(t *testing.T) {
	db, err := Open(context.Background(), DBConfig{Driver: DriverDuckDB, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRowContext(context.Background(), "SELECT 1").Scan(&one); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if one != 1 {
		t.Fatalf("SELECT 1 = %d", one)
	}
}

func TestDuckDBReadOnlyDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{dsn: "", want: ""},
		{dsn: ":memory:", want: ":memory:"},
		{dsn: "/data/joborder.duckdb", want: "/data/joborder.duckdb?access_mode=READ_ONLY"},
		{dsn: "/data/joborder.duckdb?threads=4", want: "/data/joborder.duckdb?threads=4&access_mode=READ_ONLY"},
		{dsn: "/data/joborder.duckdb?access_mode=READ_WRITE", want: "/data/joborder.duckdb?access_mode=READ_WRITE"},
	}
	for _, tt := range tests {
		if got := duckDBReadOnly(tt.dsn); got != tt.want {
			t.Fatalf("duckDBReadOnly(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestOpenDuckDBFileIsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joborder.duckdb")
	seed, err := sql.Open(DriverDuckDB, path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE JOBORDER (PART_NO VARCHAR, STOCK_MAIN INTEGER)`,
		`INSERT INTO JOBORDER VALUES ('P-1', 3)`,
	} {
		if _, err := seed.Exec(stmt); err != nil {
			t.Fatalf("seed db: %v", err)
		}
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("close seed db: %v", err)
	}

	db, err := Open(context.Background(), DBConfig{Driver: DriverDuckDB, DSN: path, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	var stock int
	if err := db.QueryRowContext(context.Background(), "SELECT STOCK_MAIN FROM JOBORDER").Scan(&stock); err != nil {
		t.Fatalf("select error = %v", err)
	}
	if stock != 3 {
		t.Fatalf("STOCK_MAIN = %d, want 3", stock)
	}
	if _, err := db.ExecContext(context.Background(), "DELETE FROM JOBORDER"); err == nil {
		t.Fatal("expected write to a read-only DuckDB file to fail")
	}
}
