package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/parse"
)

// Tolerances for monetary comparisons. Line totals accept a relative margin
// plus an absolute cent; tax calculations accept a fixed 1.5 cents to absorb
// per-item rounding.
var (
	relativeTolerance = decimal.NewFromFloat(0.001)
	centTolerance     = decimal.NewFromFloat(0.01)
	icmsTolerance     = decimal.NewFromFloat(0.015)
	hundred           = decimal.NewFromInt(100)
)

// Engine evaluates items against the catalog. CompanyName identifies the
// audited company: outbound sale CFOPs naming it as recipient are flagged as
// purchases booked with the wrong operation direction.
type Engine struct {
	CompanyName string
}

// New creates a rules engine for the named audited company. An empty name
// disables the direction check.
func New(companyName string) *Engine {
	return &Engine{CompanyName: strings.ToLower(strings.TrimSpace(companyName))}
}

// Evaluate runs every rule against one item and returns the matching catalog
// findings. It never errors: a rule either matches or it does not.
func (e *Engine) Evaluate(item model.Item) []model.Inconsistency {
	var findings []model.Inconsistency
	add := func(code string) {
		findings = append(findings, MustFind(code))
	}

	cfop := strings.TrimSpace(item["produto_cfop"])
	ncm := strings.TrimSpace(item["produto_ncm"])
	cstICMS := strings.TrimSpace(item["produto_cst_icms"])
	cstPIS := strings.TrimSpace(item["produto_cst_pis"])
	cstCOFINS := strings.TrimSpace(item["produto_cst_cofins"])

	qty, hasQty := parse.Amount(item["produto_qtd"])
	unit, hasUnit := parse.Amount(item["produto_valor_unit"])
	total, hasTotal := parse.Amount(item["produto_valor_total"])

	// Operation direction: a sale CFOP naming the audited company as
	// recipient means a purchase was booked as an outbound operation.
	if e.CompanyName != "" && (strings.HasPrefix(cfop, "5") || strings.HasPrefix(cfop, "6")) {
		dest := strings.ToLower(item["destinatario_nome"])
		if strings.Contains(dest, e.CompanyName) {
			add(CodeCFOPSaidaEmCompra)
		}
	}

	if ncm == "00000000" && !looksLikeService(item["produto_nome"]) {
		add(CodeNCMServicoParaProduto)
	}
	if ncm != "" && ncm != "00000000" && len(ncm) != 8 {
		add(CodeNCMInvalido)
	}

	if hasQty && hasUnit && hasTotal && qty.IsPositive() && unit.IsPositive() && total.IsPositive() {
		calculated := qty.Mul(unit)
		diff := calculated.Sub(total).Abs()
		if diff.GreaterThan(calculated.Mul(relativeTolerance)) && diff.GreaterThan(centTolerance) {
			add(CodeValorCalcDivergente)
		}
	}

	if hasTotal && total.IsZero() && hasQty && qty.IsPositive() {
		add(CodeValorProdZero)
	}

	emitUF := strings.ToUpper(strings.TrimSpace(item["emitente_uf"]))
	destUF := strings.ToUpper(strings.TrimSpace(item["destinatario_uf"]))
	if emitUF != "" && destUF != "" && cfop != "" {
		switch {
		case strings.HasPrefix(cfop, "6") && emitUF == destUF:
			add(CodeCFOPInterestadualUF)
		case strings.HasPrefix(cfop, "5") && emitUF != destUF:
			add(CodeCFOPEstadualUF)
		}
	}

	if isReturnCFOP(cfop) {
		if taxedPISCOFINS(cstPIS) || taxedPISCOFINS(cstCOFINS) {
			add(CodePISCOFINSDevolucao)
		}
		if cstICMS == "00" || cstICMS == "20" {
			add(CodeICMSCSTInvalido)
		}
	}

	base, hasBase := parse.Amount(item["produto_base_calculo_icms"])
	rate, hasRate := parse.Amount(item["produto_aliquota_icms"])
	icms, hasICMS := parse.Amount(item["produto_valor_icms"])
	if hasBase && hasRate && hasICMS && base.IsPositive() && rate.IsPositive() && icms.IsPositive() {
		calculated := base.Mul(rate).Div(hundred)
		if calculated.Sub(icms).Abs().GreaterThan(icmsTolerance) {
			add(CodeICMSCalcDivergente)
		}
	}

	return findings
}

// isReturnCFOP reports whether the operation code marks a devolution
// (1.2xx, 2.2xx, 5.2xx, 6.2xx families).
func isReturnCFOP(cfop string) bool {
	for _, prefix := range []string{"12", "22", "52", "62"} {
		if strings.HasPrefix(cfop, prefix) {
			return true
		}
	}
	return false
}

func taxedPISCOFINS(cst string) bool {
	return cst == "01" || cst == "02"
}

func looksLikeService(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "serviço") || strings.Contains(lower, "servico") ||
		strings.Contains(lower, "consultoria")
}
