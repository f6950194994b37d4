// Package crossval compares items across documents in a batch. Items sharing
// a product identity are checked for diverging classification codes and for
// unit-price spreads beyond a fixed threshold. Comparison is quadratic only
// inside one name group, never across the whole batch.
package crossval

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/parse"
)

// priceVariationThreshold is the relative (max-min)/min spread that raises a
// price finding.
const priceVariationThreshold = 0.15

type sourcedItem struct {
	item model.Item
	ref  model.DocRef
}

type productGroup struct {
	displayName string
	items       []sourcedItem
}

// Validate runs every cross-document check over the non-error documents of a
// batch and returns the findings in deterministic order.
func Validate(docs []*model.AuditedDocument) []model.CrossFinding {
	groups, order := groupByProduct(docs)

	var findings []model.CrossFinding
	for _, key := range order {
		group := groups[key]
		if len(group.items) < 2 {
			continue
		}
		if f, ok := checkNCMDivergence(group); ok {
			findings = append(findings, f)
		}
		if f, ok := checkPriceSpread(group); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// groupByProduct buckets items by case-normalized product name, recording
// first-seen order so output does not depend on map iteration.
func groupByProduct(docs []*model.AuditedDocument) (map[string]*productGroup, []string) {
	groups := make(map[string]*productGroup)
	var order []string

	for _, d := range docs {
		if d.Status == model.StatusErro || d.Doc == nil || len(d.Doc.Items) == 0 {
			continue
		}
		ref := model.DocRef{Name: d.Doc.Name, InternalPath: d.Doc.Summary.InternalPath}
		for _, item := range d.Doc.Items {
			name := strings.TrimSpace(item["produto_nome"])
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			g, ok := groups[key]
			if !ok {
				g = &productGroup{displayName: name}
				groups[key] = g
				order = append(order, key)
			}
			g.items = append(g.items, sourcedItem{item: item, ref: ref})
		}
	}
	return groups, order
}

// checkNCMDivergence flags a product appearing with more than one
// classification code. The first observed code is the reference; every other
// code becomes one discrepancy against it.
func checkNCMDivergence(group *productGroup) (model.CrossFinding, bool) {
	firstByNCM := make(map[string]sourcedItem)
	var ncms []string
	for _, si := range group.items {
		ncm := strings.TrimSpace(si.item["produto_ncm"])
		if ncm == "" {
			ncm = "N/A"
		}
		if _, ok := firstByNCM[ncm]; !ok {
			firstByNCM[ncm] = si
			ncms = append(ncms, ncm)
		}
	}
	if len(ncms) < 2 {
		return model.CrossFinding{}, false
	}

	reference := ncms[0]
	discrepancies := make([]model.Discrepancy, 0, len(ncms)-1)
	for _, other := range ncms[1:] {
		discrepancies = append(discrepancies, model.Discrepancy{
			ValueA: reference,
			DocA:   firstByNCM[reference].ref,
			ValueB: other,
			DocB:   firstByNCM[other].ref,
		})
	}

	return model.CrossFinding{
		ComparisonKey: group.displayName,
		Attribute:     "NCM",
		Description: fmt.Sprintf(
			"O produto %q foi encontrado com múltiplos códigos NCM (%s), o que pode levar a tributação inconsistente.",
			group.displayName, strings.Join(ncms, ", ")),
		Discrepancies: discrepancies,
		Severity:      model.SeverityAlerta,
	}, true
}

// checkPriceSpread flags a product whose unit price varies more than the
// threshold between its cheapest and most expensive occurrence.
func checkPriceSpread(group *productGroup) (model.CrossFinding, bool) {
	var minPrice, maxPrice decimal.Decimal
	var minItem, maxItem *sourcedItem

	for i := range group.items {
		si := &group.items[i]
		price, ok := parse.Amount(si.item["produto_valor_unit"])
		if !ok || !price.IsPositive() {
			continue
		}
		if minItem == nil || price.LessThan(minPrice) {
			minPrice, minItem = price, si
		}
		if maxItem == nil || price.GreaterThan(maxPrice) {
			maxPrice, maxItem = price, si
		}
	}
	if minItem == nil || maxItem == nil || minPrice.Equal(maxPrice) {
		return model.CrossFinding{}, false
	}

	variation, _ := maxPrice.Sub(minPrice).Div(minPrice).Float64()
	if variation <= priceVariationThreshold {
		return model.CrossFinding{}, false
	}

	return model.CrossFinding{
		ComparisonKey: group.displayName,
		Attribute:     "Preço Unitário",
		Description: fmt.Sprintf("Variação de preço de %.0f%% detectada para o produto %q.",
			variation*100, group.displayName),
		Discrepancies: []model.Discrepancy{{
			ValueA: parse.FormatBRL(minPrice),
			DocA:   minItem.ref,
			ValueB: parse.FormatBRL(maxPrice),
			DocB:   maxItem.ref,
		}},
		Severity: model.SeverityAlerta,
	}, true
}
