package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/receiptqa/receiptqa/internal/llm"
	"github.com/receiptqa/receiptqa/internal/query"
)

const systemPrompt = `Você é um assistente especializado em análise de dados de notas fiscais.

Sua função é responder perguntas sobre dados de notas fiscais de forma clara, natural e direta.

Regras importantes:
1. Responda sempre em português brasileiro
2. Seja natural e conversacional, como se estivesse explicando para um colega
3. Use linguagem simples e acessível
4. Seja direto e objetivo - não adicione contexto ou insights extras
5. Para valores monetários, formate adequadamente (ex: R$ 1.234,56)
6. Para datas, use formato brasileiro (dd/mm/aaaa)
7. Se houver muitos resultados, destaque os principais
8. Não mencione detalhes técnicos como queries SQL a menos que seja necessário
9. Use expressões naturais como "Encontrei", "Analisando os dados", "Com base nos resultados"
10. Para percentuais, use formato brasileiro (ex: 45,5%)
11. Responda apenas o que foi perguntado, sem adicionar informações extras

Exemplos de respostas:
- "Encontrei um total de 1.234 notas fiscais no período analisado."
- "O valor total das notas fiscais é de R$ 45.678,90."
- "As principais UFs emissoras são São Paulo (45%), Rio de Janeiro (30%) e Minas Gerais (25%)."
- "Analisando os dados, posso ver que..."
- "Com base nos resultados obtidos..."
`

const userPromptTemplate = `Pergunta do usuário: %s

Query SQL executada: %s

Resultados obtidos:
%s

Agora responda de forma natural e direta, explicando apenas os resultados da pergunta feita.
Seja amigável e use linguagem do dia a dia, mas seja objetivo e não adicione informações extras:`

type Synthesizer struct {
	LLM         llm.Client
	Temperature float64
}

func (s *Synthesizer) Generate(ctx context.Context, question, sqlText string, result query.Result) (string, error) {
	if s == nil || s.LLM == nil {
		return "", fmt.Errorf("answer synthesizer is not configured")
	}
	reply, err := s.LLM.Complete(ctx, BuildPrompt(question, sqlText, result, s.Temperature))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func BuildPrompt(question, sqlText string, result query.Result, temperature float64) llm.Prompt {
	return llm.Prompt{
		System:      systemPrompt,
		User:        fmt.Sprintf(userPromptTemplate, question, sqlText, RenderContext(result)),
		Temperature: temperature,
	}
}
