package federation

import (
	"sort"
	"strconv"

	"github.com/catenax-ng/product-agents-edc-sub000/sparql"
	"github.com/catenax-ng/product-agents-edc-sub000/tuple"
)

// CorrelationVar carries the row index of a deduplicated binding through the
// remote call.
const CorrelationVar = "__binding"

// dedupBatch is the deduplicated form of one group's bindings.
type dedupBatch struct {
	needed    []string
	distinct  []sparql.Binding   // projected onto needed
	originals [][]sparql.Binding // distinct index -> candidate bindings
	input     []sparql.Binding
}

// newDedupBatch projects input onto the variables sub mentions and collapses
// bindings that agree on all of them.
func newDedupBatch(sub sparql.Node, input []sparql.Binding) *dedupBatch {
	present := make(map[string]struct{})
	for _, b := range input {
		for _, v := range b.Vars() {
			present[v] = struct{}{}
		}
	}
	var needed []string
	for _, v := range sparql.Variables(sub) {
		if _, ok := present[v]; ok {
			needed = append(needed, v)
		}
	}
	sort.Strings(needed)

	d := &dedupBatch{needed: needed, input: input}
	index := make(map[string]int, len(input))
	for _, b := range input {
		key := b.Key(needed)
		i, ok := index[key]
		if !ok {
			i = len(d.distinct)
			index[key] = i
			d.distinct = append(d.distinct, b.Project(needed))
			d.originals = append(d.originals, nil)
		}
		d.originals[i] = append(d.originals[i], b)
	}
	return d
}

func (d *dedupBatch) columns() []string {
	return append([]string{CorrelationVar}, d.needed...)
}

// values renders the batch as an inline VALUES block.
func (d *dedupBatch) values() *sparql.Values {
	rows := make([][]sparql.Term, len(d.distinct))
	for i, b := range d.distinct {
		row := make([]sparql.Term, 0, len(d.needed)+1)
		row = append(row, sparql.TypedLiteral(strconv.Itoa(i), sparql.XSDInteger))
		for _, v := range d.needed {
			t, _ := b.Get(v)
			if t.Kind == sparql.KindBlank {
				// 空白节点跨端点无意义，按 UNDEF 发送
				t = sparql.Term{}
			}
			row = append(row, t)
		}
		rows[i] = row
	}
	return &sparql.Values{Vars: d.columns(), Rows: rows}
}

// query is the combined request for graph and endpoint calls.
func (d *dedupBatch) query(sub sparql.Node) string {
	return sparql.SerializeSelect(nil, &sparql.Sequence{Nodes: []sparql.Node{d.values(), sub}})
}

// table is the parameter table for skill calls.
func (d *dedupBatch) table() *tuple.Set {
	rows := make([]sparql.Binding, len(d.distinct))
	for i, b := range d.distinct {
		rows[i] = b.With(CorrelationVar, sparql.Literal(strconv.Itoa(i)))
	}
	return tuple.FromBindings(rows, d.columns())
}

// expand maps remote rows back onto the candidate bindings. Remote values
// win; variables the remote side did not echo are re-attached from the
// original. Rows without a correlation value apply to every candidate; rows
// with an unknown one are dropped and counted.
func (d *dedupBatch) expand(results []sparql.Binding) (out []sparql.Binding, dropped int) {
	for _, r := range results {
		targets := d.input
		if corr, ok := r.Get(CorrelationVar); ok {
			i, err := strconv.Atoi(corr.Value)
			if err != nil || i < 0 || i >= len(d.originals) {
				dropped++
				continue
			}
			targets = d.originals[i]
		}
		row := r.Without(CorrelationVar)
		for _, o := range targets {
			out = append(out, row.Merge(o))
		}
	}
	return out, dropped
}
