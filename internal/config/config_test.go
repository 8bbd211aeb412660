package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("agent-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8000" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Database.Driver != "pgx" || cfg.Database.MaxOpenConns != 10 {
		t.Fatalf("Database = %#v", cfg.Database)
	}
	if cfg.Query.MaxRows != 500 || cfg.Query.Timeout != 15*time.Second {
		t.Fatalf("Query = %#v", cfg.Query)
	}
	if cfg.Model.Provider != "ollama" || cfg.Model.BaseURL != "http://localhost:11434" || cfg.Model.Name != "qwen3:8b" {
		t.Fatalf("Model = %#v", cfg.Model)
	}
	if cfg.Model.Timeout != 30*time.Second || !cfg.Model.Deterministic || cfg.Model.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("Model = %#v", cfg.Model)
	}
	if cfg.Schema.Dialect != "postgres" || cfg.Schema.File != "" {
		t.Fatalf("Schema = %#v", cfg.Schema)
	}
	if cfg.Health.Timeout != 5*time.Second {
		t.Fatalf("Health.Timeout = %s", cfg.Health.Timeout)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"AGENT_PROFILE": "prod"})
	cfg, err := Load("agent-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"AGENT_PROFILE":               "test",
		"AGENT_SERVICE_NAME":          "agent-custom",
		"AGENT_HTTP_ADDR":             ":9999",
		"AGENT_HTTP_READ_TIMEOUT":     "2s",
		"AGENT_HTTP_WRITE_TIMEOUT":    "3s",
		"AGENT_LOG_LEVEL":             "error",
		"AGENT_AUTH_REQUIRED":         "true",
		"AGENT_AUTH_STATIC_KEYS":      "k1:ops",
		"AGENT_DB_DRIVER":             "DuckDB",
		"AGENT_DB_DSN":                "/data/joborder.duckdb?access_mode=read_only",
		"AGENT_DB_MAX_OPEN_CONNS":     "42",
		"AGENT_DB_MAX_IDLE_CONNS":     "17",
		"AGENT_QUERY_MAX_ROWS":        "50",
		"AGENT_QUERY_TIMEOUT":         "4s",
		"AGENT_MODEL_PROVIDER":        "openai",
		"AGENT_MODEL_BASE_URL":        "http://llm.local:8080",
		"AGENT_MODEL_API_KEY":         "secret-key",
		"AGENT_MODEL_NAME":            "llama3.1",
		"AGENT_MODEL_TIMEOUT":         "21s",
		"AGENT_MODEL_DETERMINISTIC":   "false",
		"AGENT_MODEL_TEMPERATURE":     "0.3",
		"AGENT_MODEL_SEED":            "7",
		"AGENT_MODEL_RETRY_BACKOFF":   "1s",
		"AGENT_SQL_DIALECT":           "duckdb",
		"AGENT_SCHEMA_FILE":           "/etc/agent/joborder.yaml",
		"AGENT_MCP_ENABLED":           "false",
		"AGENT_HEALTH_TIMEOUT":        "9s",
		"AGENT_DB_CONN_MAX_LIFETIME":  "1h",
		"AGENT_DB_CONN_MAX_IDLE_TIME": "10m",
	})
	cfg, err := Load("agent-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "agent-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP = %#v", cfg.HTTP)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:ops" {
		t.Fatalf("Auth = %#v", cfg.Auth)
	}
	if cfg.Database.Driver != "duckdb" || cfg.Database.DSN != "/data/joborder.duckdb?access_mode=read_only" {
		t.Fatalf("Database = %#v", cfg.Database)
	}
	if cfg.Database.MaxOpenConns != 42 || cfg.Database.MaxIdleConns != 17 {
		t.Fatalf("Database pool = %#v", cfg.Database)
	}
	if cfg.Database.ConnMaxLifetime != time.Hour || cfg.Database.ConnMaxIdleTime != 10*time.Minute {
		t.Fatalf("Database lifetimes = %#v", cfg.Database)
	}
	if cfg.Query.MaxRows != 50 || cfg.Query.Timeout != 4*time.Second {
		t.Fatalf("Query = %#v", cfg.Query)
	}
	if cfg.Model.Provider != "openai" || cfg.Model.BaseURL != "http://llm.local:8080" || cfg.Model.APIKey != "secret-key" {
		t.Fatalf("Model = %#v", cfg.Model)
	}
	if cfg.Model.Name != "llama3.1" || cfg.Model.Timeout != 21*time.Second || cfg.Model.Deterministic {
		t.Fatalf("Model = %#v", cfg.Model)
	}
	if cfg.Model.Temperature != 0.3 || cfg.Model.Seed != 7 || cfg.Model.RetryBackoff != time.Second {
		t.Fatalf("Model sampling = %#v", cfg.Model)
	}
	if cfg.Schema.Dialect != "duckdb" || cfg.Schema.File != "/etc/agent/joborder.yaml" {
		t.Fatalf("Schema = %#v", cfg.Schema)
	}
	if cfg.MCP.Enabled {
		t.Fatal("MCP.Enabled = true, want false")
	}
	if cfg.Health.Timeout != 9*time.Second {
		t.Fatalf("Health.Timeout = %s", cfg.Health.Timeout)
	}
}

func TestLoadDuckDBDriverDefaultsDialect(t *testing.T) {
	cfg, err := Load("agent-api", mapLookup(map[string]string{
		"AGENT_DB_DRIVER": "duckdb",
		"AGENT_DB_DSN":    "",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Schema.Dialect != "duckdb" {
		t.Fatalf("Schema.Dialect = %q", cfg.Schema.Dialect)
	}

	cfg, err = Load("agent-api", mapLookup(map[string]string{
		"AGENT_DB_DRIVER":   "duckdb",
		"AGENT_SQL_DIALECT": "postgres",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Schema.Dialect != "postgres" {
		t.Fatalf("explicit Schema.Dialect = %q", cfg.Schema.Dialect)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"AGENT_PROFILE": "oops"},
		{"AGENT_HTTP_READ_TIMEOUT": "NaN"},
		{"AGENT_DB_MAX_OPEN_CONNS": "oops"},
		{"AGENT_DB_DRIVER": "odbc"},
		{"AGENT_DB_DSN": ""},
		{"AGENT_QUERY_MAX_ROWS": "0"},
		{"AGENT_MODEL_PROVIDER": "gemini"},
		{"AGENT_MODEL_BASE_URL": ""},
		{"AGENT_MODEL_TIMEOUT": "0s"},
		{"AGENT_MODEL_TEMPERATURE": "bad"},
		{"AGENT_MODEL_DETERMINISTIC": "maybe"},
		{"AGENT_SQL_DIALECT": "tsql"},
		{"AGENT_AUTH_REQUIRED": "not-bool"},
		{"AGENT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("agent-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "postgres://agent:s3cret@db:5432/inventory?sslmode=disable", want: "postgres://agent:***@db:5432/inventory?sslmode=disable"},
		{in: "postgres://agent@db:5432/inventory", want: "postgres://agent@db:5432/inventory"},
		{in: "host=db user=agent password=s3cret dbname=inventory", want: "host=db user=agent password=*** dbname=inventory"},
		{in: "/data/joborder.duckdb", want: "/data/joborder.duckdb"},
	}
	for _, tt := range tests {
		if got := MaskDSN(tt.in); got != tt.want {
			t.Fatalf("MaskDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
