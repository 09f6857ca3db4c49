package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/receiptqa/receiptqa/internal/pipeline"
	"github.com/receiptqa/receiptqa/internal/query"
)

type askerFunc func(ctx context.Context, question pipeline.Question) (pipeline.Turn, error)

func (f askerFunc) Ask(ctx context.Context, question pipeline.Question) (pipeline.Turn, error) {
	return f(ctx, question)
}

type schemaFunc func(ctx context.Context) (query.Schema, error)

func (f schemaFunc) DescribeSchema(ctx context.Context) (query.Schema, error) {
	return f(ctx)
}

func TestAskHandlerReturnsAnswerJSON(t *testing.T) {
	var got pipeline.Question
	handler := AskHandler(Dependencies{Asker: askerFunc(func(_ context.Context, question pipeline.Question) (pipeline.Turn, error) {
		got = question
		return pipeline.Turn{ClientID: question.ClientID, SQL: "SELECT COUNT(*) FROM receipts", Answer: "Existem 1234 notas."}, nil
	})})

	result, err := handler(context.Background(), callRequest(ToolAsk, map[string]any{"question": " Quantas notas? "}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if got.Text != "Quantas notas?" || got.ClientID != "default" {
		t.Fatalf("question = %#v", got)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["answer"] != "Existem 1234 notas." || payload["sql_query"] != "SELECT COUNT(*) FROM receipts" || payload["client_id"] != "default" {
		t.Fatalf("payload = %#v", payload)
	}
}

func TestAskHandlerRequiresQuestion(t *testing.T) {
	called := false
	handler := AskHandler(Dependencies{Asker: askerFunc(func(context.Context, pipeline.Question) (pipeline.Turn, error) {
		called = true
		return pipeline.Turn{}, nil
	})})

	for _, args := range []map[string]any{{}, {"question": "  "}, {"client_id": "c1"}} {
		result, err := handler(context.Background(), callRequest(ToolAsk, args))
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if !result.IsError {
			t.Fatalf("args %v: expected tool error", args)
		}
	}
	if called {
		t.Fatal("pipeline should not run without a question")
	}
}

func TestAskHandlerReportsPipelineFailure(t *testing.T) {
	handler := AskHandler(Dependencies{Asker: askerFunc(func(context.Context, pipeline.Question) (pipeline.Turn, error) {
		return pipeline.Turn{}, errors.New("generate sql: status=500")
	})})

	result, err := handler(context.Background(), callRequest(ToolAsk, map[string]any{"question": "q", "client_id": "c1"}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(t, result), "status=500") {
		t.Fatalf("result = %#v", result)
	}
}

func TestSchemaHandlerRendersTables(t *testing.T) {
	handler := SchemaHandler(Dependencies{Schema: schemaFunc(func(context.Context) (query.Schema, error) {
		return query.Schema{Tables: []query.Table{{Name: "receipts", Columns: []query.Column{{Name: "UF_EMITENTE", Type: "VARCHAR"}}}}}, nil
	})})

	result, err := handler(context.Background(), callRequest(ToolDescribeSchema, nil))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	text := resultText(t, result)
	if result.IsError || !strings.Contains(text, "Tabela: receipts") || !strings.Contains(text, "UF_EMITENTE (VARCHAR)") {
		t.Fatalf("text = %q", text)
	}
}

func TestSchemaHandlerWithEmptyStore(t *testing.T) {
	handler := SchemaHandler(Dependencies{Schema: schemaFunc(func(context.Context) (query.Schema, error) {
		return query.Schema{}, nil
	})})

	result, err := handler(context.Background(), callRequest(ToolDescribeSchema, nil))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if result.IsError || resultText(t, result) != "Nenhuma tabela carregada." {
		t.Fatalf("result = %#v", result)
	}
}

func TestNewRegistersTools(t *testing.T) {
	if New(Dependencies{}) == nil {
		t.Fatal("expected server")
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var request mcp.CallToolRequest
	request.Params.Name = name
	if args != nil {
		request.Params.Arguments = args
	}
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %#v", result.Content[0])
	}
	return text.Text
}
