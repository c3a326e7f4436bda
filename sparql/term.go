package sparql

import (
	"strings"
)

// XSD datatype IRIs used by the gateway.
const (
	XSDString  = "http://www.w3.org/2001/XMLSchema#string"
	XSDInteger = "http://www.w3.org/2001/XMLSchema#integer"
)

// TermKind discriminates RDF term flavours.
type TermKind uint8

const (
	KindUnbound TermKind = iota
	KindIRI
	KindLiteral
	KindBlank
	KindVariable
)

// Term is an RDF term or a query variable. The zero Term is "unbound".
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Lang     string
}

// IRI returns an IRI term.
func IRI(value string) Term { return Term{Kind: KindIRI, Value: value} }

// Literal returns a plain literal.
func Literal(value string) Term { return Term{Kind: KindLiteral, Value: value} }

// TypedLiteral returns a literal with an explicit datatype.
func TypedLiteral(value, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: value, Datatype: datatype}
}

// LangLiteral returns a language-tagged literal.
func LangLiteral(value, lang string) Term {
	return Term{Kind: KindLiteral, Value: value, Lang: lang}
}

// Blank returns a blank node term.
func Blank(id string) Term { return Term{Kind: KindBlank, Value: id} }

// Var returns a variable term. A leading '?' or '$' is stripped.
func Var(name string) Term {
	return Term{Kind: KindVariable, Value: strings.TrimLeft(name, "?$")}
}

// IsBound reports whether the term carries a value.
func (t Term) IsBound() bool { return t.Kind != KindUnbound }

// IsVariable reports whether the term is a query variable.
func (t Term) IsVariable() bool { return t.Kind == KindVariable }

// IsIRI reports whether the term is an IRI.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// String renders the term in SPARQL syntax.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + escapeIRI(t.Value) + ">"
	case KindLiteral:
		lit := `"` + escapeLiteral(t.Value) + `"`
		switch {
		case t.Lang != "" && validLang(t.Lang):
			return lit + "@" + t.Lang
		case t.Datatype != "":
			return lit + "^^<" + escapeIRI(t.Datatype) + ">"
		default:
			return lit
		}
	case KindBlank:
		return "_:" + t.Value
	case KindVariable:
		return "?" + t.Value
	default:
		return "UNDEF"
	}
}

// key is an unambiguous rendering used for grouping. Unlike String it does
// not escape, so distinct terms never share a key.
func (t Term) key() string {
	return string(rune('0'+t.Kind)) + t.Value + "\x00" + t.Datatype + "\x00" + t.Lang
}

// escapeIRI percent-encodes the characters IRIREF forbids, so a value can
// never close the surrounding angle brackets.
func escapeIRI(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if iriForbidden(s[i]) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if iriForbidden(c) {
			sb.WriteByte('%')
			sb.WriteByte(hex[c>>4])
			sb.WriteByte(hex[c&0x0f])
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func iriForbidden(c byte) bool {
	if c <= 0x20 {
		return true
	}
	switch c {
	case '<', '>', '"', '{', '}', '|', '^', '`', '\\':
		return true
	}
	return false
}

// validLang checks the LANGTAG production: [a-zA-Z]+ ('-' [a-zA-Z0-9]+)*.
// Invalid tags are not rendered.
func validLang(tag string) bool {
	for i, part := range strings.Split(tag, "-") {
		if part == "" {
			return false
		}
		for j := 0; j < len(part); j++ {
			c := part[j]
			alpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
			if !alpha && (i == 0 || c < '0' || c > '9') {
				return false
			}
		}
	}
	return true
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

// ParseTerm reads a single term in SPARQL/N-Triples-like syntax. Anything that
// is not recognisably an IRI, blank node, variable or quoted literal becomes a
// plain literal, which is what URL parameter values usually are.
func ParseTerm(s string) Term {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Literal("")
	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		return IRI(s[1 : len(s)-1])
	case strings.HasPrefix(s, "_:"):
		return Blank(s[2:])
	case strings.HasPrefix(s, "?") && len(s) > 1:
		return Var(s)
	case strings.HasPrefix(s, `"`):
		return parseQuoted(s)
	default:
		return Literal(s)
	}
}

func parseQuoted(s string) Term {
	end := -1
	for i := 1; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '"' {
			end = i
			break
		}
	}
	if end < 0 {
		return Literal(s)
	}
	value := unescapeLiteral(s[1:end])
	rest := s[end+1:]
	switch {
	case strings.HasPrefix(rest, "@"):
		return LangLiteral(value, rest[1:])
	case strings.HasPrefix(rest, "^^<") && strings.HasSuffix(rest, ">"):
		return TypedLiteral(value, rest[3:len(rest)-1])
	default:
		return Literal(value)
	}
}

var literalUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\"`, `"`,
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
)

func unescapeLiteral(s string) string {
	return literalUnescaper.Replace(s)
}
