package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditoria/fiscal/internal/encoding"
	"github.com/auditoria/fiscal/internal/model"
)

func testEngine() *Engine {
	return NewEngine(nil, nil)
}

func normalizeText(t *testing.T, name string, format model.Format, text string) *model.Document {
	t.Helper()
	entry := model.RawFileEntry{Name: name, Size: int64(len(text)), Data: []byte(text)}
	doc := testEngine().Normalize(entry, format, encoding.Result{Text: text})
	require.NotNil(t, doc)
	return doc
}

func issueCodes(doc *model.Document) []string {
	codes := make([]string, 0, len(doc.Summary.Issues))
	for _, issue := range doc.Summary.Issues {
		codes = append(codes, issue.Code)
	}
	return codes
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name string
		text string
		want rune
	}{
		{"comma", "a,b,c\n1,2,3\n4,5,6\n", ','},
		{"semicolon", "nome;valor;uf\nitem;10,50;SP\noutro;20,00;RJ\n", ';'},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
		{"pipe", "a|b|c\n1|2|3\n4|5|6\n", '|'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sniffDelimiter(tt.text)
			assert.Equal(t, tt.want, got.delimiter)
		})
	}
}

func TestSniffDelimiterDeterministic(t *testing.T) {
	text := "col a;col b\n1;2\n3;4\n"
	first := sniffDelimiter(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, sniffDelimiter(text))
	}
}

func TestNormalizeTabular(t *testing.T) {
	text := "produto_nome;produto_qtd;produto_valor_total\nCaneta;10;25,00\nCaderno;2;31,80\n"
	doc := normalizeText(t, "itens.csv", model.FormatTabular, text)

	require.Len(t, doc.Items, 2)
	assert.Equal(t, "Caneta", doc.Items[0]["produto_nome"])
	assert.Equal(t, "31,80", doc.Items[1]["produto_valor_total"])
	assert.Equal(t, ";", doc.Summary.Delimiter)
	assert.Equal(t, 2, doc.Summary.RowCount)
	assert.Equal(t, 3, doc.Summary.ColumnCount)
	assert.False(t, doc.Failed())
}

func TestNormalizeTabularSkipsBlankRows(t *testing.T) {
	text := "a,b\n1,2\n,\n\n3,4\n"
	doc := normalizeText(t, "gaps.csv", model.FormatTabular, text)
	assert.Len(t, doc.Items, 2)
}

func TestNormalizeTabularCleansFormulaPrefix(t *testing.T) {
	text := "=nome,valor\nx,1\n"
	doc := normalizeText(t, "excel.csv", model.FormatTabular, text)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "x", doc.Items[0]["nome"])
}

const sampleNFe = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc>
  <NFe>
    <infNFe Id="NFe35240712345678000190550010000000011000000017">
      <ide><dhEmi>2024-07-01T10:00:00-03:00</dhEmi></ide>
      <emit><xNome>Fornecedor LTDA</xNome><CNPJ>12345678000190</CNPJ><enderEmit><UF>SP</UF></enderEmit></emit>
      <dest><xNome>Cliente SA</xNome><CNPJ>98765432000155</CNPJ><enderDest><UF>RJ</UF></enderDest></dest>
      <det nItem="1">
        <prod>
          <xProd>Parafuso 4mm</xProd>
          <NCM>73181500</NCM>
          <CFOP>6102</CFOP>
          <qCom>100</qCom>
          <vUnCom>0.50</vUnCom>
          <vProd>50.00</vProd>
        </prod>
        <imposto>
          <ICMS><ICMS00><CST>00</CST><vBC>50.00</vBC><pICMS>18.00</pICMS><vICMS>9.00</vICMS></ICMS00></ICMS>
          <PIS><PISAliq><CST>01</CST><vPIS>0.83</vPIS><pPIS>1.65</pPIS></PISAliq></PIS>
          <COFINS><COFINSAliq><CST>01</CST><vCOFINS>3.80</vCOFINS><pCOFINS>7.60</pCOFINS></COFINSAliq></COFINS>
        </imposto>
      </det>
      <det nItem="2">
        <prod>
          <xProd>Porca 4mm</xProd>
          <NCM>73181600</NCM>
          <CFOP>6102</CFOP>
          <qCom>100</qCom>
          <vUnCom>0.30</vUnCom>
          <vProd>30.00</vProd>
        </prod>
      </det>
      <total><ICMSTot><vNF>80.00</vNF></ICMSTot></total>
    </infNFe>
  </NFe>
</nfeProc>`

func TestNormalizeMarkupInvoice(t *testing.T) {
	doc := normalizeText(t, "nota.xml", model.FormatMarkup, sampleNFe)

	require.Len(t, doc.Items, 2)
	first := doc.Items[0]
	assert.Equal(t, "35240712345678000190550010000000011000000017", first["nfe_id"])
	assert.Equal(t, "Fornecedor LTDA", first["emitente_nome"])
	assert.Equal(t, "SP", first["emitente_uf"])
	assert.Equal(t, "RJ", first["destinatario_uf"])
	assert.Equal(t, "80.00", first["valor_total_nfe"])
	assert.Equal(t, "Parafuso 4mm", first["produto_nome"])
	assert.Equal(t, "6102", first["produto_cfop"])
	assert.Equal(t, "00", first["produto_cst_icms"])
	assert.Equal(t, "01", first["produto_cst_pis"])
	assert.Equal(t, "9.00", first["produto_valor_icms"])

	second := doc.Items[1]
	assert.Equal(t, "Porca 4mm", second["produto_nome"])
	assert.Equal(t, "Fornecedor LTDA", second["emitente_nome"])
	assert.Empty(t, second["produto_cst_icms"])
}

func TestNormalizeMarkupUnknownShape(t *testing.T) {
	doc := normalizeText(t, "config.xml", model.FormatMarkup, `<settings><option>1</option></settings>`)
	require.Len(t, doc.Items, 1)
	assert.Contains(t, issueCodes(doc), "XML_ESTRUTURA_DESCONHECIDA")
	assert.False(t, doc.Failed())
}

func TestNormalizeMarkupInvalid(t *testing.T) {
	doc := normalizeText(t, "broken.xml", model.FormatMarkup, `<a><b></a>`)
	assert.True(t, doc.Failed())
	assert.Contains(t, issueCodes(doc), "XML_INVALIDO")
	assert.Equal(t, 0, doc.Summary.RowCount)
}

func TestNormalizeStructured(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		doc := normalizeText(t, "itens.json", model.FormatStructured,
			`[{"produto_nome":"Caneta","produto_qtd":10},{"produto_nome":"Lapis","produto_qtd":5.5}]`)
		require.Len(t, doc.Items, 2)
		assert.Equal(t, "10", doc.Items[0]["produto_qtd"])
		assert.Equal(t, "5.5", doc.Items[1]["produto_qtd"])
	})

	t.Run("object", func(t *testing.T) {
		doc := normalizeText(t, "doc.json", model.FormatStructured, `{"nfe_id":"123","valor_total_nfe":99.9}`)
		require.Len(t, doc.Items, 1)
		assert.Equal(t, "99.9", doc.Items[0]["valor_total_nfe"])
	})

	t.Run("scalar", func(t *testing.T) {
		doc := normalizeText(t, "num.json", model.FormatStructured, `42`)
		require.Len(t, doc.Items, 1)
		assert.Equal(t, "42", doc.Items[0]["valor"])
		assert.Contains(t, issueCodes(doc), "JSON_ESCALAR")
	})

	t.Run("invalid", func(t *testing.T) {
		doc := normalizeText(t, "bad.json", model.FormatStructured, `{not json}`)
		assert.True(t, doc.Failed())
		assert.Contains(t, issueCodes(doc), "JSON_INVALIDO")
	})

	t.Run("nested kept as fragment", func(t *testing.T) {
		doc := normalizeText(t, "nested.json", model.FormatStructured, `[{"emitente":{"nome":"X"}}]`)
		require.Len(t, doc.Items, 1)
		assert.JSONEq(t, `{"nome":"X"}`, doc.Items[0]["emitente"])
	})
}

func TestNormalizePlainText(t *testing.T) {
	doc := normalizeText(t, "notas.txt", model.FormatPlainText, "primeira linha\n\nterceira linha\n")
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "1", doc.Items[0]["linha"])
	assert.Equal(t, "terceira linha", doc.Items[1]["conteudo"])
	assert.Equal(t, []string{"linha", "conteudo"}, doc.Summary.Columns)
}

func TestNormalizePlainTextSparse(t *testing.T) {
	doc := normalizeText(t, "esparso.txt", model.FormatPlainText, "a\n\n\n\n\n\n")
	assert.Contains(t, issueCodes(doc), "TEXTO_ESPARSO")
}

func TestNormalizeUnsupported(t *testing.T) {
	entry := model.RawFileEntry{Name: "video.mp4", Size: 4, Data: []byte{0, 1, 2, 3}}
	doc := testEngine().Normalize(entry, model.FormatUnsupported, encoding.Result{})
	assert.True(t, doc.Failed())
	assert.Contains(t, issueCodes(doc), "FORMATO_NAO_SUPORTADO")
}

func TestNormalizePlaceholderItem(t *testing.T) {
	doc := normalizeText(t, "vazio.txt", model.FormatPlainText, "")
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "vazio.txt", doc.Items[0]["documento"])
}

type fakeRecognizer struct {
	text string
	err  error
}

func (f fakeRecognizer) RecoverText([]byte, string) (string, error) { return f.text, f.err }

func TestNormalizeDocImage(t *testing.T) {
	entry := model.RawFileEntry{Name: "nota.pdf", Size: 10, Data: []byte("%PDF-1.4..")}

	t.Run("fields extracted", func(t *testing.T) {
		engine := NewEngine(nil, fakeRecognizer{text: "CNPJ: 12.345.678/0001-90\nData de Emissão: 01/07/2024\nValor Total: R$ 1.234,56\nNCM: 73181500\nCFOP: 6102\n"})
		doc := engine.Normalize(entry, model.FormatDocImage, encoding.Result{})
		require.Len(t, doc.Items, 1)
		assert.Equal(t, "12.345.678/0001-90", doc.Items[0]["emitente_cnpj"])
		assert.Equal(t, "01/07/2024", doc.Items[0]["data_emissao"])
		assert.Equal(t, "1.234,56", doc.Items[0]["valor_total_nfe"])
		assert.Equal(t, "6102", doc.Items[0]["produto_cfop"])
	})

	t.Run("no text", func(t *testing.T) {
		engine := NewEngine(nil, fakeRecognizer{text: "   "})
		doc := engine.Normalize(entry, model.FormatDocImage, encoding.Result{})
		assert.True(t, doc.Failed())
		assert.Contains(t, issueCodes(doc), "OCR_SEM_TEXTO")
	})

	t.Run("recognizer failure", func(t *testing.T) {
		engine := NewEngine(nil, fakeRecognizer{err: errors.New("engine offline")})
		doc := engine.Normalize(entry, model.FormatDocImage, encoding.Result{})
		assert.True(t, doc.Failed())
		assert.Contains(t, issueCodes(doc), "OCR_FALHA")
	})

	t.Run("unstructured text", func(t *testing.T) {
		engine := NewEngine(nil, fakeRecognizer{text: "relatório livre sem campos"})
		doc := engine.Normalize(entry, model.FormatDocImage, encoding.Result{})
		assert.False(t, doc.Failed())
		assert.Contains(t, issueCodes(doc), "OCR_SEM_ESTRUTURA")
	})
}

func TestGuessLocale(t *testing.T) {
	lang, locale := guessLocale("emissão 01/07/2024 valor 1.234,56 às 10h", nil)
	assert.Equal(t, "pt", lang)
	assert.Equal(t, "pt-BR", locale)

	lang, locale = guessLocale("invoice total 1,234.56 issued on 2024-07-01", nil)
	assert.Equal(t, "en", lang)
	assert.Equal(t, "en-US", locale)

	lang, locale = guessLocale("", nil)
	assert.Empty(t, lang)
	assert.Empty(t, locale)
}
