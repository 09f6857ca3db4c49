package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/receiptqa/receiptqa/internal/memory"
	"github.com/receiptqa/receiptqa/internal/observability"
	"github.com/receiptqa/receiptqa/internal/query"
)

type Stage string

const (
	StageSchemaFetched   Stage = "schema_fetched"
	StageSQLGenerated    Stage = "sql_generated"
	StageExecuted        Stage = "executed"
	StageAnswerGenerated Stage = "answer_generated"
)

type SQLGenerator interface {
	Generate(ctx context.Context, question string, schema query.Schema) (string, error)
}

type AnswerGenerator interface {
	Generate(ctx context.Context, question, sql string, result query.Result) (string, error)
}

type Question struct {
	Text     string
	ClientID string
}

// Turn is everything produced while answering one question.
type Turn struct {
	ClientID string
	Question string
	SQL      string
	Result   query.Result
	Answer   string
}

// StageError reports which stage aborted a question.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Service answers one question by running introspect, generate SQL, execute
// and generate answer in order. There is no retry. Memory is write-only: the
// finished turn is appended and a failure there never changes the answer.
type Service struct {
	Schema   query.SchemaReader
	Executor query.Executor
	SQL      SQLGenerator
	Answer   AnswerGenerator
	Memory   memory.Store
	Logger   *slog.Logger
	Now      func() time.Time
}

func (s *Service) Ask(ctx context.Context, question Question) (Turn, error) {
	turn := Turn{
		ClientID: memory.NormalizeClientID(question.ClientID),
		Question: question.Text,
	}
	logger := s.logger().With(
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("client_id", turn.ClientID),
	)
	logger.DebugContext(ctx, "question_received", slog.Int("question_chars", len(question.Text)))

	var schema query.Schema
	if err := s.stage(ctx, logger, StageSchemaFetched, func() error {
		var err error
		schema, err = s.Schema.DescribeSchema(ctx)
		if err != nil {
			return fmt.Errorf("describe schema: %w", err)
		}
		return nil
	}); err != nil {
		return Turn{}, s.fail(StageSchemaFetched, err)
	}

	if err := s.stage(ctx, logger, StageSQLGenerated, func() error {
		var err error
		turn.SQL, err = s.SQL.Generate(ctx, turn.Question, schema)
		observability.ObserveLLMCall(observability.PurposeSQL, err)
		return err
	}); err != nil {
		return Turn{}, s.fail(StageSQLGenerated, err)
	}
	logger.DebugContext(ctx, "sql_generated", slog.String("sql", turn.SQL))

	_ = s.stage(ctx, logger, StageExecuted, func() error {
		turn.Result = s.Executor.Execute(ctx, turn.SQL)
		if execErr, ok := turn.Result.(query.ExecutionError); ok {
			observability.IncrementExecutionErrors()
			logger.WarnContext(ctx, "sql_execution_failed", slog.String("error", execErr.Message))
		}
		return nil
	})

	if err := s.stage(ctx, logger, StageAnswerGenerated, func() error {
		var err error
		turn.Answer, err = s.Answer.Generate(ctx, turn.Question, turn.SQL, turn.Result)
		observability.ObserveLLMCall(observability.PurposeAnswer, err)
		return err
	}); err != nil {
		return Turn{}, s.fail(StageAnswerGenerated, err)
	}

	s.remember(ctx, logger, turn)
	observability.ObservePipelineRequest(observability.OutcomeAnswered)
	return turn, nil
}

func (s *Service) stage(ctx context.Context, logger *slog.Logger, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	observability.ObserveStage(string(stage), elapsed)
	if err != nil {
		logger.ErrorContext(ctx, "pipeline_stage_failed",
			slog.String("stage", string(stage)),
			slog.String("duration", elapsed.String()),
			slog.String("error", observability.Mask(err.Error())),
		)
		return err
	}
	logger.InfoContext(ctx, "pipeline_stage",
		slog.String("stage", string(stage)),
		slog.String("duration", elapsed.String()),
	)
	return nil
}

func (s *Service) fail(stage Stage, err error) error {
	observability.ObservePipelineRequest(observability.OutcomeFailed)
	return &StageError{Stage: stage, Err: err}
}

func (s *Service) remember(ctx context.Context, logger *slog.Logger, turn Turn) {
	if s.Memory == nil {
		return
	}
	if err := s.Memory.Append(ctx, turn.ClientID, memory.Turn(turn.Question, turn.Answer, s.now().UTC())...); err != nil {
		logger.WarnContext(ctx, "memory_append_failed", slog.String("error", observability.Mask(err.Error())))
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}
