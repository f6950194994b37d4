package audit

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/parse"
)

// Aggregate computes the batch-level financial metrics shown in the report
// summary. Error-status documents are excluded; document-level totals are
// counted once per invoice identity, item-level totals over every item.
func Aggregate(docs []*model.AuditedDocument) map[string]string {
	var items []model.Item
	for _, d := range docs {
		if d.Status == model.StatusErro || d.Doc == nil {
			continue
		}
		items = append(items, d.Doc.Items...)
	}

	seenNFe := make(map[string]bool)
	totalNFe := decimal.Zero
	totalProducts := decimal.Zero
	totalICMS := decimal.Zero
	totalPIS := decimal.Zero
	totalCOFINS := decimal.Zero

	for _, item := range items {
		if id := strings.TrimSpace(item["nfe_id"]); id != "" && !seenNFe[id] {
			seenNFe[id] = true
			if v, ok := parse.Amount(item["valor_total_nfe"]); ok {
				totalNFe = totalNFe.Add(v)
			}
		}
		totalProducts = addAmount(totalProducts, item["produto_valor_total"])
		totalICMS = addAmount(totalICMS, item["produto_valor_icms"])
		totalPIS = addAmount(totalPIS, item["produto_valor_pis"])
		totalCOFINS = addAmount(totalCOFINS, item["produto_valor_cofins"])
	}

	return map[string]string{
		"Número de Documentos Válidos": strconv.Itoa(len(seenNFe)),
		"Valor Total das NFes":         parse.FormatBRL(totalNFe),
		"Valor Total dos Produtos":     parse.FormatBRL(totalProducts),
		"Valor Total de ICMS":          parse.FormatBRL(totalICMS),
		"Valor Total de PIS":           parse.FormatBRL(totalPIS),
		"Valor Total de COFINS":        parse.FormatBRL(totalCOFINS),
		"Itens Processados":            strconv.Itoa(len(items)),
	}
}

func addAmount(sum decimal.Decimal, raw string) decimal.Decimal {
	if v, ok := parse.Amount(raw); ok {
		return sum.Add(v)
	}
	return sum
}
