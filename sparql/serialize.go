package sparql

import (
	"strings"
)

// Serialize renders a plan fragment as a SPARQL group graph pattern,
// including the enclosing braces.
func Serialize(n Node) string {
	var sb strings.Builder
	sb.WriteString("{ ")
	writeContent(&sb, n)
	sb.WriteString(" }")
	return sb.String()
}

// SerializeSelect renders a complete SELECT query. An empty vars list
// selects every variable.
func SerializeSelect(vars []string, n Node) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	writeProjection(&sb, vars)
	sb.WriteString(" WHERE ")
	sb.WriteString(Serialize(n))
	return sb.String()
}

func writeProjection(sb *strings.Builder, vars []string) {
	if len(vars) == 0 {
		sb.WriteString("*")
		return
	}
	for i, v := range vars {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("?" + v)
	}
}

// writeContent writes the body of a group pattern, without braces.
func writeContent(sb *strings.Builder, n Node) {
	switch v := n.(type) {
	case nil:
	case *BGP:
		for i, tr := range v.Triples {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(tr.S.String() + " " + tr.P.String() + " " + tr.O.String() + " .")
		}
	case *Join:
		writeJoined(sb, []Node{v.Left, v.Right})
	case *Sequence:
		writeJoined(sb, v.Nodes)
	case *Union:
		sb.WriteString(Serialize(v.Left))
		sb.WriteString(" UNION ")
		sb.WriteString(Serialize(v.Right))
	case *Graph:
		sb.WriteString("GRAPH " + v.Name.String() + " ")
		sb.WriteString(Serialize(v.Sub))
	case *Service:
		sb.WriteString("SERVICE ")
		if v.Silent {
			sb.WriteString("SILENT ")
		}
		sb.WriteString(v.Target.String() + " ")
		sb.WriteString(Serialize(v.Sub))
	case *Project:
		sb.WriteString("{ ")
		sb.WriteString(SerializeSelect(v.Vars, v.Sub))
		sb.WriteString(" }")
	case *Filter:
		writeContent(sb, v.Sub)
		sb.WriteString(" FILTER(" + v.Condition + ")")
	case *Values:
		writeValues(sb, v)
	}
}

// writeJoined concatenates fragments in order. Fragments whose scope would
// leak into siblings (filters, nested joins) get their own group.
func writeJoined(sb *strings.Builder, nodes []Node) {
	first := true
	for _, c := range nodes {
		if c == nil {
			continue
		}
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		switch c.(type) {
		case *Filter, *Join, *Sequence:
			sb.WriteString(Serialize(c))
		default:
			writeContent(sb, c)
		}
	}
}

func writeValues(sb *strings.Builder, v *Values) {
	sb.WriteString("VALUES (")
	for i, name := range v.Vars {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("?" + name)
	}
	sb.WriteString(") {")
	for _, row := range v.Rows {
		sb.WriteString(" (")
		for i := range v.Vars {
			if i > 0 {
				sb.WriteByte(' ')
			}
			// 空白节点不能出现在 VALUES 中
			if i < len(row) && row[i].Kind != KindBlank {
				sb.WriteString(row[i].String())
			} else {
				sb.WriteString("UNDEF")
			}
		}
		sb.WriteByte(')')
	}
	sb.WriteString(" }")
}
