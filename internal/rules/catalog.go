// Package rules evaluates one normalized item at a time against a fixed
// catalog of fiscal consistency checks. Evaluation is a pure function: rules
// only select catalog entries, they never mutate them or the item.
package rules

import "github.com/auditoria/fiscal/internal/model"

// Catalog keys double as the stable finding codes used for per-document
// deduplication. Messages and normative references are fixed templates.
const (
	CodeCFOPSaidaEmCompra     = "CFOP_SAIDA_EM_COMPRA"
	CodeNCMServicoParaProduto = "NCM_SERVICO_PARA_PRODUTO"
	CodeNCMInvalido           = "NCM_INVALIDO"
	CodeValorCalcDivergente   = "VALOR_CALCULO_DIVERGENTE"
	CodeValorProdZero         = "VALOR_PROD_ZERO"
	CodeCFOPInterestadualUF   = "CFOP_INTERESTADUAL_UF_INCOMPATIVEL"
	CodeCFOPEstadualUF        = "CFOP_ESTADUAL_UF_INCOMPATIVEL"
	CodePISCOFINSDevolucao    = "PIS_COFINS_CST_INVALIDO_PARA_DEVOLUCAO"
	CodeICMSCSTInvalido       = "ICMS_CST_INVALIDO_PARA_CFOP"
	CodeICMSCalcDivergente    = "ICMS_CALCULO_DIVERGENTE"
	CodeImportFalha           = "IMPORT_FALHA"
)

var catalog = map[string]model.Inconsistency{
	CodeCFOPSaidaEmCompra: {
		Code:          CodeCFOPSaidaEmCompra,
		Message:       "CFOP de saída (5xxx/6xxx) em operação de compra.",
		Explanation:   "O CFOP indica uma Venda/Remessa, mas a empresa auditada é a destinatária. Para compras, o CFOP deveria ser de entrada (1xxx/2xxx). Isso pode indicar erro de digitação ou fraude fiscal.",
		NormativeBase: "Anexo II do Convênio S/Nº, de 15 de dezembro de 1970.",
		Severity:      model.SeverityErro,
	},
	CodeNCMServicoParaProduto: {
		Code:          CodeNCMServicoParaProduto,
		Message:       "NCM \"00000000\" usado para um item que parece ser um produto.",
		Explanation:   "O NCM \"00000000\" é reservado para serviços ou itens sem classificação. Se o item é um bem físico, ele deve ter um código NCM específico da tabela TIPI. A classificação incorreta afeta a tributação de IPI e ICMS.",
		NormativeBase: "Tabela de Incidência do IPI (TIPI), aprovada pelo Decreto nº 11.158/2022.",
		Severity:      model.SeverityAlerta,
	},
	CodeNCMInvalido: {
		Code:          CodeNCMInvalido,
		Message:       "Código NCM possui formato inválido.",
		Explanation:   "O NCM deve ser um código de 8 dígitos. Um formato incorreto pode indicar erro de cadastro e levar à rejeição da NFe ou a uma tributação errada.",
		NormativeBase: "Sistema Harmonizado de Designação e de Codificação de Mercadorias.",
		Severity:      model.SeverityErro,
	},
	CodeValorCalcDivergente: {
		Code:          CodeValorCalcDivergente,
		Message:       "Valor total do item (vProd) não corresponde a Qtd x Vlr. Unit.",
		Explanation:   "A multiplicação da quantidade pelo valor unitário diverge do valor total do produto. Isso pode indicar erros de arredondamento, descontos não informados ou manipulação de valores.",
		NormativeBase: "Princípios contábeis e Art. 476 do Código Civil.",
		Severity:      model.SeverityErro,
	},
	CodeValorProdZero: {
		Code:          CodeValorProdZero,
		Message:       "Produto com valor total zerado.",
		Explanation:   "O valor total do produto é zero. Isso pode ser uma bonificação, doação ou amostra, que exige um CFOP específico (e.g., 5910/6910) e pode ter tratamento tributário diferenciado.",
		NormativeBase: "RICMS (Regulamento do ICMS) do respectivo estado para operações de bonificação.",
		Severity:      model.SeverityAlerta,
	},
	CodeCFOPInterestadualUF: {
		Code:          CodeCFOPInterestadualUF,
		Message:       "CFOP interestadual (6xxx) usado em operação com mesma UF de origem e destino.",
		Explanation:   "Um CFOP iniciado com 6 indica uma operação interestadual (entre estados diferentes). No entanto, a UF do emitente e do destinatário são as mesmas. Isso pode indicar um erro de digitação no CFOP ou nos endereços.",
		NormativeBase: "Anexo II do Convênio S/Nº, de 15 de dezembro de 1970.",
		Severity:      model.SeverityErro,
	},
	CodeCFOPEstadualUF: {
		Code:          CodeCFOPEstadualUF,
		Message:       "CFOP estadual (5xxx) usado em operação com UFs de origem e destino diferentes.",
		Explanation:   "Um CFOP iniciado com 5 indica uma operação estadual (dentro do mesmo estado). No entanto, a UF do emitente e do destinatário são diferentes. O CFOP correto para esta operação provavelmente deveria começar com 6.",
		NormativeBase: "Anexo II do Convênio S/Nº, de 15 de dezembro de 1970.",
		Severity:      model.SeverityErro,
	},
	CodePISCOFINSDevolucao: {
		Code:          CodePISCOFINSDevolucao,
		Message:       "CST de PIS/COFINS (tributado) em CFOP de devolução.",
		Explanation:   "Operações de devolução (CFOPs 12xx, 22xx, 52xx, 62xx) geralmente devem ter um CST de PIS/COFINS específico, como \"98 - Outras Operações de Saída\". Um CST de tributação normal (ex: 01) está provavelmente incorreto.",
		NormativeBase: "Lei 10.833/03 (COFINS) e Lei 10.637/02 (PIS).",
		Severity:      model.SeverityAlerta,
	},
	CodeICMSCSTInvalido: {
		Code:          CodeICMSCSTInvalido,
		Message:       "CST de ICMS incompatível com o CFOP da operação.",
		Explanation:   "O CST do ICMS indica um tipo de tributação (ex: \"00 - Tributada integralmente\") que não é compatível com um CFOP de devolução, que deveria ter um CST não-tributado ou de substituição tributária.",
		NormativeBase: "Anexo I (Códigos de Situação Tributária) do Convênio S/Nº, de 1970.",
		Severity:      model.SeverityAlerta,
	},
	CodeICMSCalcDivergente: {
		Code:          CodeICMSCalcDivergente,
		Message:       "Valor do ICMS (vICMS) não corresponde ao cálculo (vBC x pICMS).",
		Explanation:   "O valor do ICMS informado no item diverge do cálculo da Base de Cálculo (vBC) pela Alíquota (pICMS). Isso pode indicar erros de cálculo, arredondamento incorreto ou manipulação fiscal.",
		NormativeBase: "Lei Complementar nº 87/1996 (Lei Kandir).",
		Severity:      model.SeverityErro,
	},
	CodeImportFalha: {
		Code:          CodeImportFalha,
		Message:       "Falha na importação do documento.",
		Explanation:   "O arquivo não pôde ser convertido para o modelo tabular comum. O documento permanece no relatório com status de erro e deve ser verificado manualmente.",
		NormativeBase: "",
		Severity:      model.SeverityErro,
	},
}

// Find returns the immutable template for a catalog code.
func Find(code string) (model.Inconsistency, bool) {
	inc, ok := catalog[code]
	return inc, ok
}

// MustFind is Find for codes known at compile time.
func MustFind(code string) model.Inconsistency {
	inc, ok := catalog[code]
	if !ok {
		panic("rules: unknown catalog code " + code)
	}
	return inc
}
