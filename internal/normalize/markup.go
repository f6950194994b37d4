package normalize

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/auditoria/fiscal/internal/model"
)

// Mapping from electronic-invoice item tags to canonical field names.
var itemTagFields = map[string]string{
	"xProd":   "produto_nome",
	"NCM":     "produto_ncm",
	"CFOP":    "produto_cfop",
	"qCom":    "produto_qtd",
	"vUnCom":  "produto_valor_unit",
	"vProd":   "produto_valor_total",
	"vBC":     "produto_base_calculo_icms",
	"vICMS":   "produto_valor_icms",
	"pICMS":   "produto_aliquota_icms",
	"vPIS":    "produto_valor_pis",
	"pPIS":    "produto_aliquota_pis",
	"vCOFINS": "produto_valor_cofins",
	"pCOFINS": "produto_aliquota_cofins",
	"vISSQN":  "produto_valor_iss",
}

// normalizeMarkup parses XML into a generic element tree. When the tree has
// the expected fiscal-document shape (an invoice header plus det line items)
// the items are extracted with header fields repeated per item; any other
// shape keeps the whole document as one opaque item.
func (e *Engine) normalizeMarkup(doc *model.Document, text string) {
	s := &doc.Summary

	tree := etree.NewDocument()
	if err := tree.ReadFromString(text); err != nil {
		doc.Err = "falha ao interpretar o XML: " + err.Error()
		s.AddIssue("XML_INVALIDO", doc.Err, model.IssueError)
		return
	}

	header := extractInvoiceHeader(tree)
	details := tree.FindElements("//det")

	if len(header) == 0 && len(details) == 0 {
		// Not an invoice shape. Keep the document opaque rather than failing.
		doc.Items = []model.Item{{"conteudo": strings.TrimSpace(text), "documento": doc.Name}}
		s.Columns = columnsFromItems(doc.Items)
		s.AddIssue("XML_ESTRUTURA_DESCONHECIDA",
			"estrutura XML não corresponde a um documento fiscal conhecido; mantido como item único",
			model.IssueInfo)
		return
	}

	if len(details) == 0 {
		item := model.Item{"produto_nome": "Nota sem itens detalhados"}
		for k, v := range header {
			item[k] = v
		}
		doc.Items = []model.Item{item}
		s.Columns = columnsFromItems(doc.Items)
		s.Log("documento fiscal sem itens detalhados")
		return
	}

	for _, det := range details {
		item := make(model.Item, len(header)+len(itemTagFields))
		for k, v := range header {
			item[k] = v
		}
		for tag, field := range itemTagFields {
			if el := det.FindElement(".//" + tag); el != nil {
				item[field] = strings.TrimSpace(el.Text())
			}
		}
		// Tax-situation codes live under their own tax groups; a bare CST
		// lookup would conflate ICMS and PIS/COFINS.
		item["produto_cst_icms"] = findTaxCST(det, "ICMS")
		item["produto_cst_pis"] = findTaxCST(det, "PIS")
		item["produto_cst_cofins"] = findTaxCST(det, "COFINS")
		doc.Items = append(doc.Items, item)
	}
	s.Columns = columnsFromItems(doc.Items)
	s.Log("itens extraídos do documento fiscal: " + strconv.Itoa(len(details)))
}

// extractInvoiceHeader pulls document-level fields shared by every item.
func extractInvoiceHeader(tree *etree.Document) model.Item {
	header := make(model.Item)

	if inf := tree.FindElement("//infNFe"); inf != nil {
		id := inf.SelectAttrValue("Id", "")
		header["nfe_id"] = strings.TrimPrefix(id, "NFe")
	}
	setFromTree(header, tree, "//ide/dhEmi", "data_emissao")
	setFromTree(header, tree, "//ICMSTot/vNF", "valor_total_nfe")
	setFromTree(header, tree, "//emit/xNome", "emitente_nome")
	setFromTree(header, tree, "//emit/CNPJ", "emitente_cnpj")
	setFromTree(header, tree, "//emit//UF", "emitente_uf")
	setFromTree(header, tree, "//dest/xNome", "destinatario_nome")
	setFromTree(header, tree, "//dest/CNPJ", "destinatario_cnpj")
	setFromTree(header, tree, "//dest//UF", "destinatario_uf")

	// Loose fallbacks for non-namespaced or flattened layouts.
	if header["data_emissao"] == "" {
		setFromTree(header, tree, "//dhEmi", "data_emissao")
	}
	if header["valor_total_nfe"] == "" {
		setFromTree(header, tree, "//vNF", "valor_total_nfe")
	}

	for k, v := range header {
		if v == "" {
			delete(header, k)
		}
	}
	return header
}

func setFromTree(item model.Item, tree *etree.Document, path, field string) {
	if el := tree.FindElement(path); el != nil {
		item[field] = strings.TrimSpace(el.Text())
	}
}

func findTaxCST(det *etree.Element, group string) string {
	if g := det.FindElement(".//" + group); g != nil {
		if cst := g.FindElement(".//CST"); cst != nil {
			return strings.TrimSpace(cst.Text())
		}
	}
	return ""
}
