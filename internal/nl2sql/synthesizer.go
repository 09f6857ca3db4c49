package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/receiptqa/receiptqa/internal/llm"
	"github.com/receiptqa/receiptqa/internal/query"
)

const DefaultTemperature = 0.3

const systemPromptTemplate = `Você é um especialista em SQL e análise de dados.

Baseado na pergunta do usuário, você deve gerar uma query SQL válida para o banco de dados %s.

Schema do banco de dados:
%s

Regras importantes:
1. Use apenas as tabelas 'receipts' e 'items'
2. A tabela 'receipts' contém informações das notas fiscais (cabeçalho)
3. A tabela 'items' contém os itens de cada nota fiscal
4. As tabelas são relacionadas pela coluna 'CHAVE_DE_ACESSO'
5. Para contar notas fiscais, use COUNT(*) na tabela receipts
6. Para valores monetários, use a coluna 'VALOR_NOTA_FISCAL' da tabela receipts
7. Para datas, use a coluna 'DATA_EMISSAO'
8. Para o estado emissor, use a coluna 'UF_EMITENTE'
9. Retorne APENAS a query SQL, sem explicações adicionais

Exemplos de queries comuns:
- Contar total de notas: SELECT COUNT(*) as total_notas FROM receipts
- Soma de valores: SELECT SUM(VALOR_NOTA_FISCAL) as valor_total FROM receipts
- Notas por UF: SELECT UF_EMITENTE, COUNT(*) as total FROM receipts GROUP BY UF_EMITENTE
`

// Synthesizer turns a question into one SQL statement with a single model call.
// The reply is trusted: it is trimmed and returned without validation.
type Synthesizer struct {
	LLM         llm.Client
	Temperature float64
	// Dialect names the engine in the prompt, e.g. "DuckDB" or "SQLite".
	Dialect string
}

func (s *Synthesizer) Generate(ctx context.Context, question string, schema query.Schema) (string, error) {
	if s == nil || s.LLM == nil {
		return "", fmt.Errorf("sql synthesizer is not configured")
	}
	reply, err := s.LLM.Complete(ctx, BuildPrompt(question, schema, s.Dialect, s.Temperature))
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func BuildPrompt(question string, schema query.Schema, dialect string, temperature float64) llm.Prompt {
	if strings.TrimSpace(dialect) == "" {
		dialect = "DuckDB"
	}
	return llm.Prompt{
		System:      fmt.Sprintf(systemPromptTemplate, dialect, schema.Render()),
		User:        fmt.Sprintf("Pergunta: %s\n\nGere uma query SQL para responder esta pergunta:", question),
		Temperature: temperature,
	}
}
