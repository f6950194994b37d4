package rules

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditoria/fiscal/internal/model"
)

func codes(findings []model.Inconsistency) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func cleanItem() model.Item {
	return model.Item{
		"produto_nome":        "Parafuso 4mm",
		"produto_ncm":         "73181500",
		"produto_cfop":        "6102",
		"produto_qtd":         "100",
		"produto_valor_unit":  "0,50",
		"produto_valor_total": "50,00",
		"emitente_uf":         "SP",
		"destinatario_uf":     "RJ",
	}
}

func TestEvaluateCleanItem(t *testing.T) {
	e := New("")
	assert.Empty(t, e.Evaluate(cleanItem()))
}

func TestInterstateCFOPSameUF(t *testing.T) {
	// 6101 declares an interstate sale, but both parties are in SP.
	item := cleanItem()
	item["produto_cfop"] = "6101"
	item["destinatario_uf"] = "SP"

	findings := New("").Evaluate(item)
	assert.Contains(t, codes(findings), CodeCFOPInterestadualUF)

	inc := findings[0]
	assert.Equal(t, model.SeverityErro, inc.Severity)
	assert.NotEmpty(t, inc.Explanation)
	assert.NotEmpty(t, inc.NormativeBase)
}

func TestIntrastateCFOPDifferentUF(t *testing.T) {
	item := cleanItem()
	item["produto_cfop"] = "5102"

	findings := New("").Evaluate(item)
	assert.Contains(t, codes(findings), CodeCFOPEstadualUF)
}

func TestGeoRulesNeedBothUFs(t *testing.T) {
	item := cleanItem()
	item["produto_cfop"] = "6101"
	item["destinatario_uf"] = ""
	assert.Empty(t, New("").Evaluate(item))
}

func TestValueDivergenceTolerance(t *testing.T) {
	// The finding fires exactly when the divergence exceeds both the 0.1%
	// relative margin and the one-cent absolute margin.
	tests := []struct {
		qty, unit, total string
		want             bool
	}{
		{"100", "0.50", "50.00", false},
		{"100", "0.50", "50.01", false}, // inside one cent
		{"100", "0.50", "50.04", false}, // inside the 0.1% relative margin
		{"100", "0.50", "50.06", true},  // outside both margins
		{"3", "33.33", "100.00", false}, // 99.99 vs 100.00, inside margins
		{"10", "10.00", "105.00", true},
		{"2", "0.005", "0.02", false}, // sub-cent rounding
	}
	e := New("")
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%sx%s=%s", tt.qty, tt.unit, tt.total), func(t *testing.T) {
			item := cleanItem()
			item["produto_qtd"] = tt.qty
			item["produto_valor_unit"] = tt.unit
			item["produto_valor_total"] = tt.total

			got := codes(e.Evaluate(item))
			if tt.want {
				assert.Contains(t, got, CodeValorCalcDivergente)
			} else {
				assert.NotContains(t, got, CodeValorCalcDivergente)
			}
		})
	}
}

func TestZeroValueWithPositiveQuantity(t *testing.T) {
	item := cleanItem()
	item["produto_valor_total"] = "0,00"
	item["produto_valor_unit"] = "0,00"

	findings := New("").Evaluate(item)
	assert.Contains(t, codes(findings), CodeValorProdZero)
}

func TestNCMRules(t *testing.T) {
	t.Run("placeholder on physical product", func(t *testing.T) {
		item := cleanItem()
		item["produto_ncm"] = "00000000"
		assert.Contains(t, codes(New("").Evaluate(item)), CodeNCMServicoParaProduto)
	})

	t.Run("placeholder on service is allowed", func(t *testing.T) {
		item := cleanItem()
		item["produto_ncm"] = "00000000"
		item["produto_nome"] = "Serviço de consultoria tributária"
		got := codes(New("").Evaluate(item))
		assert.NotContains(t, got, CodeNCMServicoParaProduto)
	})

	t.Run("wrong length", func(t *testing.T) {
		item := cleanItem()
		item["produto_ncm"] = "7318"
		assert.Contains(t, codes(New("").Evaluate(item)), CodeNCMInvalido)
	})

	t.Run("missing NCM is not flagged", func(t *testing.T) {
		item := cleanItem()
		item["produto_ncm"] = ""
		got := codes(New("").Evaluate(item))
		assert.NotContains(t, got, CodeNCMInvalido)
		assert.NotContains(t, got, CodeNCMServicoParaProduto)
	})
}

func TestReturnOperationCSTs(t *testing.T) {
	t.Run("taxed PIS on devolution", func(t *testing.T) {
		item := cleanItem()
		item["produto_cfop"] = "1202"
		item["produto_cst_pis"] = "01"
		assert.Contains(t, codes(New("").Evaluate(item)), CodePISCOFINSDevolucao)
	})

	t.Run("taxed ICMS on devolution", func(t *testing.T) {
		item := cleanItem()
		item["produto_cfop"] = "6202"
		item["produto_cst_icms"] = "00"
		item["destinatario_uf"] = "SP"
		got := codes(New("").Evaluate(item))
		assert.Contains(t, got, CodeICMSCSTInvalido)
	})

	t.Run("exempt CSTs pass", func(t *testing.T) {
		item := cleanItem()
		item["produto_cfop"] = "1202"
		item["produto_cst_pis"] = "98"
		item["produto_cst_icms"] = "41"
		got := codes(New("").Evaluate(item))
		assert.NotContains(t, got, CodePISCOFINSDevolucao)
		assert.NotContains(t, got, CodeICMSCSTInvalido)
	})

	t.Run("non return CFOP ignores CSTs", func(t *testing.T) {
		item := cleanItem()
		item["produto_cst_pis"] = "01"
		item["produto_cst_icms"] = "00"
		got := codes(New("").Evaluate(item))
		assert.NotContains(t, got, CodePISCOFINSDevolucao)
		assert.NotContains(t, got, CodeICMSCSTInvalido)
	})
}

func TestICMSCalculation(t *testing.T) {
	tests := []struct {
		base, rate, value string
		want              bool
	}{
		{"100.00", "18.00", "18.00", false},
		{"100.00", "18.00", "18.01", false}, // within 1.5 cents
		{"100.00", "18.00", "18.02", true},
		{"50.00", "18.00", "9.00", false},
		{"50.00", "18.00", "10.00", true},
	}
	e := New("")
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%s=%s", tt.base, tt.rate, tt.value), func(t *testing.T) {
			item := cleanItem()
			item["produto_base_calculo_icms"] = tt.base
			item["produto_aliquota_icms"] = tt.rate
			item["produto_valor_icms"] = tt.value

			got := codes(e.Evaluate(item))
			if tt.want {
				assert.Contains(t, got, CodeICMSCalcDivergente)
			} else {
				assert.NotContains(t, got, CodeICMSCalcDivergente)
			}
		})
	}
}

func TestOperationDirection(t *testing.T) {
	item := cleanItem()
	item["destinatario_nome"] = "Quantum Innovations LTDA"

	t.Run("audited company as recipient of a sale", func(t *testing.T) {
		findings := New("Quantum Innovations").Evaluate(item)
		assert.Contains(t, codes(findings), CodeCFOPSaidaEmCompra)
	})

	t.Run("other recipient passes", func(t *testing.T) {
		findings := New("Outra Empresa").Evaluate(item)
		assert.NotContains(t, codes(findings), CodeCFOPSaidaEmCompra)
	})

	t.Run("disabled without company name", func(t *testing.T) {
		findings := New("").Evaluate(item)
		assert.NotContains(t, codes(findings), CodeCFOPSaidaEmCompra)
	})

	t.Run("inbound CFOP is not a sale", func(t *testing.T) {
		inbound := cleanItem()
		inbound["produto_cfop"] = "1102"
		inbound["destinatario_nome"] = "Quantum Innovations LTDA"
		findings := New("Quantum Innovations").Evaluate(inbound)
		assert.NotContains(t, codes(findings), CodeCFOPSaidaEmCompra)
	})
}

func TestCatalogLookups(t *testing.T) {
	inc, ok := Find(CodeValorCalcDivergente)
	require.True(t, ok)
	assert.Equal(t, CodeValorCalcDivergente, inc.Code)

	_, ok = Find("NADA")
	assert.False(t, ok)

	assert.Panics(t, func() { MustFind("NADA") })
}
