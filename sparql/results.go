package sparql

import (
	"encoding/json"
	"fmt"
	"io"
)

// ContentTypeResultsJSON is the SPARQL 1.1 JSON results media type.
const ContentTypeResultsJSON = "application/sparql-results+json"

type resultsDoc struct {
	Head    resultsHead  `json:"head"`
	Results *resultsBody `json:"results,omitempty"`
	Boolean *bool        `json:"boolean,omitempty"`
}

type resultsHead struct {
	Vars []string `json:"vars"`
}

type resultsBody struct {
	Bindings []map[string]jsonTerm `json:"bindings"`
}

type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

func (j jsonTerm) term() (Term, error) {
	switch j.Type {
	case "uri":
		return IRI(j.Value), nil
	case "bnode":
		return Blank(j.Value), nil
	case "literal", "typed-literal":
		switch {
		case j.Lang != "":
			return LangLiteral(j.Value, j.Lang), nil
		case j.Datatype != "":
			return TypedLiteral(j.Value, j.Datatype), nil
		default:
			return Literal(j.Value), nil
		}
	default:
		return Term{}, fmt.Errorf("unknown term type %q", j.Type)
	}
}

func toJSONTerm(t Term) (jsonTerm, bool) {
	switch t.Kind {
	case KindIRI:
		return jsonTerm{Type: "uri", Value: t.Value}, true
	case KindBlank:
		return jsonTerm{Type: "bnode", Value: t.Value}, true
	case KindLiteral:
		return jsonTerm{Type: "literal", Value: t.Value, Lang: t.Lang, Datatype: t.Datatype}, true
	default:
		return jsonTerm{}, false
	}
}

// DecodeResults reads a SPARQL JSON results document. ASK results decode to
// no variables and one empty row when true, none when false.
func DecodeResults(r io.Reader) ([]string, []Binding, error) {
	var doc resultsDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("decode sparql results: %w", err)
	}
	if doc.Boolean != nil {
		if *doc.Boolean {
			return nil, []Binding{NewBinding(nil)}, nil
		}
		return nil, nil, nil
	}
	if doc.Results == nil {
		return nil, nil, fmt.Errorf("decode sparql results: missing results member")
	}
	rows := make([]Binding, 0, len(doc.Results.Bindings))
	for i, raw := range doc.Results.Bindings {
		m := make(map[string]Term, len(raw))
		for name, jt := range raw {
			t, err := jt.term()
			if err != nil {
				return nil, nil, fmt.Errorf("decode sparql results: row %d variable %s: %w", i, name, err)
			}
			m[name] = t
		}
		rows = append(rows, NewBinding(m))
	}
	return doc.Head.Vars, rows, nil
}

// EncodeResults writes rows as a SPARQL JSON results document. Variables
// and bound terms that are not RDF terms are omitted from each row.
func EncodeResults(w io.Writer, vars []string, rows []Binding) error {
	if vars == nil {
		vars = []string{}
	}
	body := &resultsBody{Bindings: make([]map[string]jsonTerm, 0, len(rows))}
	for _, row := range rows {
		m := make(map[string]jsonTerm, row.Len())
		for name, t := range row.vars {
			if jt, ok := toJSONTerm(t); ok {
				m[name] = jt
			}
		}
		body.Bindings = append(body.Bindings, m)
	}
	return json.NewEncoder(w).Encode(resultsDoc{Head: resultsHead{Vars: vars}, Results: body})
}
