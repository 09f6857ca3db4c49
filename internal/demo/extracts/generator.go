package extracts

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Receipt is one header row of the monthly extract.
type Receipt struct {
	ChaveDeAcesso     string  `parquet:"CHAVE DE ACESSO"`
	NaturezaOperacao  string  `parquet:"NATUREZA DA OPERAÇÃO"`
	DataEmissao       string  `parquet:"DATA EMISSÃO"`
	RazaoSocial       string  `parquet:"RAZÃO SOCIAL EMITENTE"`
	UFEmitente        string  `parquet:"UF EMITENTE"`
	MunicipioEmitente string  `parquet:"MUNICIPIO EMITENTE"`
	UFDestinatario    string  `parquet:"UF DESTINATARIO"`
	ValorNotaFiscal   float64 `parquet:"VALOR NOTA FISCAL"`
}

// Item is one line of a receipt.
type Item struct {
	ChaveDeAcesso string  `parquet:"CHAVE DE ACESSO"`
	DataEmissao   string  `parquet:"DATA EMISSÃO"`
	NumeroProduto int64   `parquet:"NUMERO PRODUTO"`
	Descricao     string  `parquet:"DESCRIÇÃO DO PRODUTO"`
	CFOP          string  `parquet:"CFOP"`
	Quantidade    float64 `parquet:"QUANTIDADE"`
	Unidade       string  `parquet:"UNIDADE"`
	ValorUnitario float64 `parquet:"VALOR UNITARIO"`
	ValorTotal    float64 `parquet:"VALOR TOTAL"`
}

var (
	receiptHeader = []string{
		"CHAVE DE ACESSO", "NATUREZA DA OPERAÇÃO", "DATA EMISSÃO", "RAZÃO SOCIAL EMITENTE",
		"UF EMITENTE", "MUNICIPIO EMITENTE", "UF DESTINATARIO", "VALOR NOTA FISCAL",
	}
	itemHeader = []string{
		"CHAVE DE ACESSO", "DATA EMISSÃO", "NUMERO PRODUTO", "DESCRIÇÃO DO PRODUTO", "CFOP",
		"QUANTIDADE", "UNIDADE", "VALOR UNITARIO", "VALOR TOTAL",
	}
)

type issuer struct {
	name string
	uf   string
	city string
}

type product struct {
	description string
	unit        string
	minPrice    float64
	maxPrice    float64
}

var (
	cities = map[string][]string{
		"SP": {"SAO PAULO", "CAMPINAS", "SANTOS"},
		"RJ": {"RIO DE JANEIRO", "NITEROI"},
		"MG": {"BELO HORIZONTE", "UBERLANDIA"},
		"PR": {"CURITIBA", "LONDRINA"},
		"RS": {"PORTO ALEGRE"},
		"BA": {"SALVADOR"},
		"DF": {"BRASILIA"},
		"PE": {"RECIFE"},
	}
	states    = []string{"SP", "RJ", "MG", "PR", "RS", "BA", "DF", "PE"}
	operation = []string{"VENDA", "VENDA DE MERCADORIA", "PRESTACAO DE SERVICO", "DEVOLUCAO DE COMPRA"}
	products  = []product{
		{description: "PAPEL A4 RESMA 500 FOLHAS", unit: "UN", minPrice: 18, maxPrice: 35},
		{description: "CANETA ESFEROGRAFICA AZUL", unit: "CX", minPrice: 12, maxPrice: 40},
		{description: "NOTEBOOK 15 POLEGADAS", unit: "UN", minPrice: 2500, maxPrice: 6500},
		{description: "CADEIRA ESCRITORIO", unit: "UN", minPrice: 350, maxPrice: 1400},
		{description: "SERVICO DE MANUTENCAO PREDIAL", unit: "SV", minPrice: 800, maxPrice: 9000},
		{description: "COMBUSTIVEL DIESEL S10", unit: "L", minPrice: 5, maxPrice: 7},
		{description: "MEDICAMENTO GENERICO", unit: "CX", minPrice: 8, maxPrice: 120},
		{description: "CAFE TORRADO 500G", unit: "PCT", minPrice: 14, maxPrice: 32},
	}
)

// Generator produces a deterministic month of receipts for a seed.
type Generator struct {
	rnd      *rand.Rand
	period   time.Time
	issuers  []issuer
	maxItems int
	sequence int64
}

func NewGenerator(seed int64, period time.Time, issuerCount, maxItems int) *Generator {
	rnd := rand.New(rand.NewSource(seed))
	issuers := make([]issuer, issuerCount)
	for i := range issuers {
		uf := pickOne(rnd, states)
		issuers[i] = issuer{
			name: fmt.Sprintf("EMPRESA DEMO %03d LTDA", i+1),
			uf:   uf,
			city: pickOne(rnd, cities[uf]),
		}
	}
	return &Generator{
		rnd:      rnd,
		period:   time.Date(period.Year(), period.Month(), 1, 0, 0, 0, 0, time.UTC),
		issuers:  issuers,
		maxItems: maxItems,
	}
}

// Next returns one receipt with its items. VALOR NOTA FISCAL is the sum of
// the item totals.
func (g *Generator) Next() (Receipt, []Item) {
	g.sequence++
	from := g.issuers[g.rnd.Intn(len(g.issuers))]
	days := g.period.AddDate(0, 1, 0).Sub(g.period).Hours() / 24
	emittedAt := g.period.
		AddDate(0, 0, g.rnd.Intn(int(days))).
		Add(time.Duration(g.rnd.Intn(24*3600)) * time.Second)
	emitted := emittedAt.Format("02/01/2006 15:04:05")
	key := g.accessKey(from.uf, emittedAt)
	cfop := "5102"
	destination := from.uf
	if g.rnd.Intn(4) == 0 {
		destination = pickOne(g.rnd, states)
	}
	if destination != from.uf {
		cfop = "6102"
	}

	count := g.rnd.Intn(g.maxItems) + 1
	items := make([]Item, count)
	total := 0.0
	for i := range items {
		p := products[g.rnd.Intn(len(products))]
		quantity := float64(g.rnd.Intn(20) + 1)
		unitPrice := round2(p.minPrice + g.rnd.Float64()*(p.maxPrice-p.minPrice))
		lineTotal := round2(quantity * unitPrice)
		total += lineTotal
		items[i] = Item{
			ChaveDeAcesso: key,
			DataEmissao:   emitted,
			NumeroProduto: int64(i + 1),
			Descricao:     p.description,
			CFOP:          cfop,
			Quantidade:    quantity,
			Unidade:       p.unit,
			ValorUnitario: unitPrice,
			ValorTotal:    lineTotal,
		}
	}

	return Receipt{
		ChaveDeAcesso:     key,
		NaturezaOperacao:  pickOne(g.rnd, operation),
		DataEmissao:       emitted,
		RazaoSocial:       from.name,
		UFEmitente:        from.uf,
		MunicipioEmitente: from.city,
		UFDestinatario:    destination,
		ValorNotaFiscal:   round2(total),
	}, items
}

// accessKey builds a 44 digit key that is unique per generator sequence.
func (g *Generator) accessKey(uf string, at time.Time) string {
	return fmt.Sprintf("%02d%s%014d55%03d%09d%010d",
		ufCode(uf), at.Format("0601"), g.rnd.Int63n(1e14), 1, g.sequence, g.rnd.Int63n(1e10))
}

func ufCode(uf string) int {
	switch uf {
	case "SP":
		return 35
	case "RJ":
		return 33
	case "MG":
		return 31
	case "PR":
		return 41
	case "RS":
		return 43
	case "BA":
		return 29
	case "DF":
		return 53
	default:
		return 26
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
