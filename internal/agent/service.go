// Package agent runs the question pipeline: prompt, completion, extraction
// and validation, execution, and assembly of the caller-facing answer.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/NopparootSuree/AI-Agent/internal/failure"
	"github.com/NopparootSuree/AI-Agent/internal/nl2sql"
	"github.com/NopparootSuree/AI-Agent/internal/observability"
	"github.com/NopparootSuree/AI-Agent/internal/query"
	"github.com/NopparootSuree/AI-Agent/internal/schema"
	"github.com/NopparootSuree/AI-Agent/internal/sqlguard"
)

// Answer is the successful outcome of one question.
type Answer struct {
	Question    string           `json:"question"`
	SQL         string           `json:"sql"`
	Explanation string           `json:"explanation"`
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	RowCount    int              `json:"row_count"`
	Truncated   bool             `json:"truncated"`
	RowLimit    int              `json:"row_limit"`
	Provider    string           `json:"provider,omitempty"`
	Model       string           `json:"model,omitempty"`
}

type Service struct {
	Schema    *schema.Descriptor
	Completer nl2sql.Completer
	Guard     *sqlguard.Guard
	Engine    query.Engine
	Dialect   string
	Logger    *slog.Logger
	Clock     func() time.Time
}

// stages records how long each pipeline step took for the outcome log line.
type stages struct {
	model   time.Duration
	execute time.Duration
}

// Ask answers one question. Every failure is a *failure.Error; when a
// statement was extracted it is carried in the error's SQL field. A statement
// that fails validation never reaches the engine.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	s.ensureDefaults()
	start := s.Clock()
	var timing stages

	if s.Schema == nil || s.Completer == nil || s.Engine == nil {
		return Answer{}, s.fail(ctx, question, start, timing, failure.New(failure.Internal, "agent service is not fully configured"))
	}

	prompt, err := nl2sql.BuildPrompt(s.Schema, question, s.Dialect)
	if err != nil {
		return Answer{}, s.fail(ctx, question, start, timing, err)
	}

	modelStart := s.Clock()
	completion, err := s.Completer.Complete(ctx, prompt)
	timing.model = s.Clock().Sub(modelStart)
	observability.ObserveModelCall(completion.Attempts, timing.model)
	if err != nil {
		return Answer{}, s.fail(ctx, question, start, timing, err)
	}
	if s.Logger != nil {
		s.Logger.DebugContext(ctx, "model_output",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("provider", completion.Provider),
			slog.String("model", completion.Model),
			slog.Int("attempts", completion.Attempts),
			slog.String("raw", completion.Text),
		)
	}

	generated, err := s.Guard.Check(completion.Text)
	if err != nil {
		return Answer{}, s.fail(ctx, question, start, timing, err)
	}

	executeStart := s.Clock()
	result, err := s.Engine.Execute(ctx, query.Request{SQL: generated.Statement})
	timing.execute = s.Clock().Sub(executeStart)
	if err != nil {
		return Answer{}, s.fail(ctx, question, start, timing, withSQL(err, generated.Statement))
	}
	observability.ObserveQueryRows(result.RowCount, result.Truncated)

	answer := Assemble(question, generated, result)
	answer.Provider = completion.Provider
	answer.Model = completion.Model

	elapsed := s.Clock().Sub(start)
	observability.ObserveQuestion("ok", elapsed)
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "question_answered",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("sql", answer.SQL),
			slog.Int("row_count", answer.RowCount),
			slog.Bool("truncated", answer.Truncated),
			slog.Int64("model_ms", timing.model.Milliseconds()),
			slog.Int64("execute_ms", timing.execute.Milliseconds()),
			slog.Int64("total_ms", elapsed.Milliseconds()),
		)
	}
	return answer, nil
}

// Assemble shapes an extracted statement and its rows into an answer.
func Assemble(question string, generated sqlguard.Generated, result query.Result) Answer {
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := result.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return Answer{
		Question:    question,
		SQL:         generated.Statement,
		Explanation: generated.Explanation,
		Columns:     columns,
		Rows:        rows,
		RowCount:    len(rows),
		Truncated:   result.Truncated,
		RowLimit:    result.RowLimit,
	}
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Guard == nil && s.Schema != nil {
		s.Guard = sqlguard.New(s.Schema)
	}
	if s.Dialect == "" {
		s.Dialect = nl2sql.DialectPostgres
	}
}

func (s *Service) fail(ctx context.Context, question string, start time.Time, timing stages, err error) error {
	failed := asFailure(err)
	elapsed := s.Clock().Sub(start)
	observability.ObserveQuestion(string(failed.Reason), elapsed)

	if s.Logger != nil {
		level := slog.LevelWarn
		if !failed.Reason.Expected() {
			level = slog.LevelError
		}
		s.Logger.Log(ctx, level, "question_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("reason", string(failed.Reason)),
			slog.String("detail", failed.Detail),
			slog.String("sql", failed.SQL),
			slog.Int("question_len", len(question)),
			slog.Int64("model_ms", timing.model.Milliseconds()),
			slog.Int64("execute_ms", timing.execute.Milliseconds()),
			slog.Int64("total_ms", elapsed.Milliseconds()),
			slog.Any("error", failed.Err),
		)
	}
	return failed
}

func asFailure(err error) *failure.Error {
	var failed *failure.Error
	if errors.As(err, &failed) {
		return failed
	}
	return failure.Wrap(failure.Internal, err, "internal error")
}

func withSQL(err error, statement string) error {
	failed := asFailure(err)
	if failed.SQL != "" {
		return failed
	}
	return failed.WithSQL(statement)
}
