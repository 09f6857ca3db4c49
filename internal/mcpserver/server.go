package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/receiptqa/receiptqa/internal/memory"
	"github.com/receiptqa/receiptqa/internal/observability"
	"github.com/receiptqa/receiptqa/internal/pipeline"
	"github.com/receiptqa/receiptqa/internal/query"
)

const (
	ToolAsk            = "ask_receipts"
	ToolDescribeSchema = "describe_schema"
)

type Asker interface {
	Ask(ctx context.Context, question pipeline.Question) (pipeline.Turn, error)
}

type Dependencies struct {
	Asker   Asker
	Schema  query.SchemaReader
	Logger  *slog.Logger
	Version string
}

// New builds an MCP server exposing the question pipeline as tools.
func New(deps Dependencies) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"receiptqa",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	RegisterTools(s, deps)
	return s
}

func RegisterTools(s *server.MCPServer, deps Dependencies) {
	askTool := mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question about the fiscal receipt data in natural language"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question in natural language, e.g. 'Quantas notas fiscais existem?'"),
		),
		mcp.WithString("client_id",
			mcp.Description("Conversation id used to record the exchange (default: default)"),
		),
	)
	schemaTool := mcp.NewTool(ToolDescribeSchema,
		mcp.WithDescription("List the tables and columns available for questions"),
	)

	s.AddTool(askTool, AskHandler(deps))
	s.AddTool(schemaTool, SchemaHandler(deps))
}

func AskHandler(deps Dependencies) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Asker == nil {
			return mcp.NewToolResultError("question pipeline is not configured"), nil
		}
		question, err := request.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcp.NewToolResultError("Forneça 'question' na requisição."), nil
		}
		clientID := memory.NormalizeClientID(request.GetString("client_id", ""))

		turn, err := deps.Asker.Ask(ctx, pipeline.Question{Text: strings.TrimSpace(question), ClientID: clientID})
		if err != nil {
			if deps.Logger != nil {
				deps.Logger.ErrorContext(ctx, "mcp_ask_failed", slog.String("error", observability.Mask(err.Error())))
			}
			return mcp.NewToolResultError(fmt.Sprintf("Erro interno do servidor: %s", observability.Mask(err.Error()))), nil
		}

		jsonData, err := json.MarshalIndent(map[string]string{
			"answer":    turn.Answer,
			"sql_query": turn.SQL,
			"client_id": turn.ClientID,
		}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal answer: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

func SchemaHandler(deps Dependencies) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Schema == nil {
			return mcp.NewToolResultError("query store is not configured"), nil
		}
		schema, err := deps.Schema.DescribeSchema(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Describe schema failed: %v", err)), nil
		}
		rendered := schema.Render()
		if rendered == "" {
			rendered = "Nenhuma tabela carregada."
		}
		return mcp.NewToolResultText(rendered), nil
	}
}
