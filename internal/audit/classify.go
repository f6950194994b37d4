package audit

import (
	"strings"

	"github.com/auditoria/fiscal/internal/model"
)

// NCM prefix to business sector, most specific prefix first.
var ncmSectorMap = map[string]string{
	"8471": "Tecnologia da Informação",
	"2106": "Preparações Alimentícias Diversas",
	"84":   "Máquinas e Equipamentos",
	"85":   "Material Elétrico",
	"22":   "Bebidas",
	"10":   "Produtos de Moagem",
}

const (
	sectorUnclassified = "Não Classificado"
	sectorDefault      = "Comércio Varejista/Atacadista"
	costCenterDefault  = "Não Alocado"
)

var operationLabels = map[string]string{
	"compra":        "Compra",
	"venda":         "Venda",
	"devolucao":     "Devolução",
	"servico":       "Serviço",
	"transferencia": "Transferência",
	"outros":        "Outros",
}

// operationBuckets fixes the vote-counting order so ties break
// deterministically.
var operationBuckets = []string{"compra", "venda", "devolucao", "servico", "transferencia", "outros"}

// Classify derives the document's predominant operation type from its CFOP
// codes and its business sector from NCM prefixes. Error documents and
// documents without CFOP-bearing items are left unclassified.
func Classify(audited *model.AuditedDocument) {
	if audited.Status == model.StatusErro || audited.Doc == nil {
		return
	}

	votes := make(map[string]int, len(operationBuckets))
	sectors := make(map[string]int)
	totalItems := 0

	for _, item := range audited.Doc.Items {
		cfop := strings.TrimSpace(item["produto_cfop"])
		if cfop != "" {
			totalItems++
			votes[operationBucket(cfop)]++
		}
		if ncm := strings.TrimSpace(item["produto_ncm"]); ncm != "" {
			sectors[businessSector(ncm)]++
		}
	}
	if totalItems == 0 {
		return
	}

	primary, count := "", 0
	for _, bucket := range operationBuckets {
		if votes[bucket] > count {
			primary, count = bucket, votes[bucket]
		}
	}

	audited.Classification = &model.Classification{
		OperationType:  operationLabels[primary],
		BusinessSector: primarySector(sectors),
		Confidence:     float64(count) / float64(totalItems),
		CostCenter:     costCenterDefault,
	}
}

// operationBucket maps one CFOP to its operation family. Inbound codes start
// with 1/2, outbound with 5/6; devolution, service and transfer subfamilies
// are carved out before the generic purchase/sale fallthrough.
func operationBucket(cfop string) string {
	switch {
	case strings.HasPrefix(cfop, "1"), strings.HasPrefix(cfop, "2"):
		switch {
		case strings.HasPrefix(cfop, "12"), strings.HasPrefix(cfop, "22"):
			return "devolucao"
		case strings.HasPrefix(cfop, "13"), strings.HasPrefix(cfop, "23"):
			return "servico"
		case strings.HasPrefix(cfop, "155"), strings.HasPrefix(cfop, "255"):
			return "transferencia"
		default:
			return "compra"
		}
	case strings.HasPrefix(cfop, "5"), strings.HasPrefix(cfop, "6"):
		switch {
		case strings.HasPrefix(cfop, "52"), strings.HasPrefix(cfop, "62"):
			return "devolucao"
		case strings.HasPrefix(cfop, "5933"), strings.HasPrefix(cfop, "6933"):
			return "servico"
		case strings.HasPrefix(cfop, "555"), strings.HasPrefix(cfop, "655"):
			return "transferencia"
		default:
			return "venda"
		}
	default:
		return "outros"
	}
}

func businessSector(ncm string) string {
	if len(ncm) < 2 {
		return sectorUnclassified
	}
	if len(ncm) >= 4 {
		if sector, ok := ncmSectorMap[ncm[:4]]; ok {
			return sector
		}
	}
	if sector, ok := ncmSectorMap[ncm[:2]]; ok {
		return sector
	}
	return sectorDefault
}

func primarySector(sectors map[string]int) string {
	if len(sectors) == 0 {
		return sectorUnclassified
	}
	best, count := "", -1
	for sector, n := range sectors {
		if n > count || (n == count && sector < best) {
			best, count = sector, n
		}
	}
	return best
}
