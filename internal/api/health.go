package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/NopparootSuree/AI-Agent/internal/config"
	"github.com/NopparootSuree/AI-Agent/internal/schema"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

type Pinger interface {
	Ping(ctx context.Context) error
}

type ColumnLister interface {
	ListColumns(ctx context.Context, namespace, table string) ([]string, error)
}

type checkResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func CheckPing(p Pinger) HealthCheck {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// CheckSchemaDrift reports descriptor columns that the live table lacks.
// The table is looked up in namespace; an empty namespace matches any schema.
func CheckSchemaDrift(lister ColumnLister, namespace string, desc *schema.Descriptor) HealthCheck {
	return func(ctx context.Context) error {
		live, err := lister.ListColumns(ctx, namespace, desc.TableName())
		if err != nil {
			return err
		}
		if len(live) == 0 {
			return fmt.Errorf("table %s not found", desc.TableName())
		}
		present := make(map[string]struct{}, len(live))
		for _, name := range live {
			present[strings.ToUpper(name)] = struct{}{}
		}
		var missing []string
		for _, name := range desc.ColumnNames() {
			if _, ok := present[strings.ToUpper(name)]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("table %s is missing columns: %s", desc.TableName(), strings.Join(missing, ", "))
		}
		return nil
	}
}

func handleHealth(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	timeout := deps.HealthTimeout
	if timeout <= 0 {
		timeout = cfg.Health.Timeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]checkResult, len(deps.HealthChecks))
	)
	for name, check := range deps.HealthChecks {
		if check == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := checkResult{Status: "ok"}
			if err := check(ctx); err != nil {
				result = checkResult{Status: "error", Detail: err.Error()}
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	status, code := "ok", http.StatusOK
	for _, result := range results {
		if result.Status != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"service": cfg.Service.Name,
		"checks":  results,
	})
}
