package sparql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() Node {
	return &Join{
		Left: &BGP{Triples: []Triple{{S: Var("s"), P: IRI("urn:p"), O: Var("o")}}},
		Right: &Service{
			Target: Var("target"),
			Silent: true,
			Sub: &Filter{
				Condition: "?o != ?excluded",
				Sub: &Graph{
					Name: Var("g"),
					Sub:  &BGP{Triples: []Triple{{S: Var("o"), P: IRI("urn:q"), O: Literal("v")}}},
				},
			},
		},
	}
}

func TestVariables(t *testing.T) {
	assert.Equal(t, []string{"excluded", "g", "o", "s", "target"}, Variables(samplePlan()))

	vals := &Values{Vars: []string{"x"}, Rows: [][]Term{{Literal("1")}}}
	proj := &Project{Vars: []string{"y"}, Sub: vals}
	assert.Equal(t, []string{"x", "y"}, Variables(proj))
	assert.Empty(t, Variables(nil))
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	plan := samplePlan()
	before := Serialize(plan)

	out := Transform(plan, func(n Node) Node {
		if s, ok := n.(*Service); ok {
			s.Target = IRI("http://peer/sparql")
			s.Silent = false
			return s
		}
		return n
	})

	assert.Equal(t, before, Serialize(plan))
	svc := out.(*Join).Right.(*Service)
	assert.Equal(t, IRI("http://peer/sparql"), svc.Target)
	assert.False(t, svc.Silent)
}

func TestWalk_SkipChildren(t *testing.T) {
	var kinds []string
	Walk(samplePlan(), func(n Node) bool {
		switch n.(type) {
		case *Join:
			kinds = append(kinds, "join")
		case *BGP:
			kinds = append(kinds, "bgp")
		case *Service:
			kinds = append(kinds, "service")
			return false
		default:
			kinds = append(kinds, "other")
		}
		return true
	})
	assert.Equal(t, []string{"join", "bgp", "service"}, kinds)
}

func TestGraphNames(t *testing.T) {
	plan := &Union{
		Left:  &Graph{Name: IRI("urn:g1"), Sub: &BGP{}},
		Right: &Graph{Name: Var("g"), Sub: &BGP{}},
	}
	names := GraphNames(plan)
	require.Len(t, names, 2)
	assert.Equal(t, IRI("urn:g1"), names[0])
	assert.True(t, names[1].IsVariable())
}

func TestSerializeSelect(t *testing.T) {
	plan := &Sequence{Nodes: []Node{
		&Values{
			Vars: []string{"__binding", "o"},
			Rows: [][]Term{
				{TypedLiteral("0", XSDInteger), IRI("urn:x")},
				{TypedLiteral("1", XSDInteger), {}},
			},
		},
		&Graph{Name: IRI("urn:g"), Sub: &BGP{Triples: []Triple{{S: Var("o"), P: IRI("urn:p"), O: Literal(`a "quoted" value`)}}}},
	}}

	got := SerializeSelect(nil, plan)
	assert.Equal(t,
		`SELECT * WHERE { VALUES (?__binding ?o) { ("0"^^<http://www.w3.org/2001/XMLSchema#integer> <urn:x>) ("1"^^<http://www.w3.org/2001/XMLSchema#integer> UNDEF) } GRAPH <urn:g> { ?o <urn:p> "a \"quoted\" value" . } }`,
		got)

	got = SerializeSelect([]string{"s"}, samplePlan())
	assert.True(t, strings.HasPrefix(got, "SELECT ?s WHERE { ?s <urn:p> ?o . SERVICE SILENT ?target {"))
	assert.Contains(t, got, "FILTER(?o != ?excluded)")
}

func TestParseTerm(t *testing.T) {
	cases := map[string]Term{
		"<urn:a>": IRI("urn:a"),
		"_:b1":    Blank("b1"),
		"?v":      Var("v"),
		`"hi"@en`: LangLiteral("hi", "en"),
		`"a\"b"`:  Literal(`a"b`),
		"plain":   Literal("plain"),
	}
	cases[`"4"^^<`+XSDInteger+`>`] = TypedLiteral("4", XSDInteger)
	for in, want := range cases {
		assert.Equal(t, want, ParseTerm(in), in)
	}
	assert.Equal(t, Literal("x"), TypedLiteral("x", XSDString))
}

func TestTermString_EscapesIRIs(t *testing.T) {
	cases := []struct {
		term Term
		want string
	}{
		{IRI("urn:x> } } ; DROP ALL #"), "<urn:x%3E%20%7D%20%7D%20;%20DROP%20ALL%20#>"},
		{IRI(`urn:a"b{c}|d^e` + "`" + `f\g`), "<urn:a%22b%7Bc%7D%7Cd%5Ee%60f%5Cg>"},
		{IRI("https://peer/data?q=1#frag"), "<https://peer/data?q=1#frag>"},
		{TypedLiteral("1", "urn:t>x"), `"1"^^<urn:t%3Ex>`},
		{LangLiteral("hi", "en-GB"), `"hi"@en-GB`},
		{LangLiteral("hi", "en . } DROP ALL"), `"hi"`},
		{LangLiteral("hi", "1en"), `"hi"`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.term.String())
	}
}

func TestBinding_KeyDistinguishesEscapedIRIs(t *testing.T) {
	b1 := NewBinding(map[string]Term{"a": IRI("urn:a b")})
	b2 := NewBinding(map[string]Term{"a": IRI("urn:a%20b")})
	assert.Equal(t, IRI("urn:a b").String(), IRI("urn:a%20b").String())
	assert.NotEqual(t, b1.Key([]string{"a"}), b2.Key([]string{"a"}), "grouping uses raw values")
}

func TestSerializeSelect_BlankNodesBecomeUndef(t *testing.T) {
	plan := &Values{
		Vars: []string{"s", "o"},
		Rows: [][]Term{{Blank("b0"), IRI("urn:x")}},
	}
	got := SerializeSelect(nil, plan)
	assert.Equal(t, `SELECT * WHERE { VALUES (?s ?o) { (UNDEF <urn:x>) } }`, got)
	assert.NotContains(t, got, "_:")
}
