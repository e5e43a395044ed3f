package yaml

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.trai.ch/zerr"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

// TemplateRenderer expands the Jinja subset used by recipe files:
// {% set name = "value" %}, {{ name }}, {{ name[0] }}, {{ name[1:3] }},
// {{ a ~ "-" ~ b }}, filters lower, upper, trim and replace("a", "b"),
// and {# comments #}. A dash after the opening or before the closing
// delimiter ({%- ... -%}) removes the whitespace, newlines included, on that
// side of the tag. Delimiters inside quoted strings do not close a tag.
type TemplateRenderer struct {
	context map[string]string
}

// RenderResult holds the expanded document and the variables it set
type RenderResult struct {
	Output    []byte
	Variables map[string]string
}

// NewTemplateRenderer creates a renderer. context resolves names the document
// uses without setting them, e.g. PYTHON.
func NewTemplateRenderer(context map[string]string) *TemplateRenderer {
	ctx := make(map[string]string, len(context))
	for k, v := range context {
		ctx[k] = v
	}
	return &TemplateRenderer{context: ctx}
}

// Render expands every tag in src
func (t *TemplateRenderer) Render(src []byte) (*RenderResult, error) {
	vars := make(map[string]string)
	var out bytes.Buffer
	rest := src
	line := 1

	for {
		start := indexTagStart(rest)
		if start < 0 {
			out.Write(rest)
			break
		}
		text := rest[:start]
		line += bytes.Count(text, []byte("\n"))
		if start+2 < len(rest) && rest[start+2] == '-' {
			text = bytes.TrimRight(text, " \t\r\n")
		}
		out.Write(text)

		open := rest[start : start+2]
		end := indexTagEnd(rest[start+2:], closingDelimiter(open), open[1] != '#')
		if end < 0 {
			err := fmt.Errorf("%w: line %d: unterminated %s", entities.ErrTemplateSyntax, line, open)
			return nil, zerr.With(err, "line", line)
		}
		body := string(rest[start+2 : start+2+end])
		rest = rest[start+2+end+2:]

		switch open[1] {
		case '#':
		case '%':
			if err := t.execStatement(trimControl(body), vars); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		case '{':
			val, err := t.eval(trimControl(body), vars)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			out.WriteString(val)
		}
		line += strings.Count(body, "\n")

		if strings.HasSuffix(body, "-") {
			trimmed := bytes.TrimLeft(rest, " \t\r\n")
			line += bytes.Count(rest[:len(rest)-len(trimmed)], []byte("\n"))
			rest = trimmed
		}
	}

	return &RenderResult{Output: out.Bytes(), Variables: vars}, nil
}

func indexTagStart(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '{' && (b[i+1] == '{' || b[i+1] == '%' || b[i+1] == '#') {
			return i
		}
	}
	return -1
}

func closingDelimiter(open []byte) []byte {
	switch open[1] {
	case '%':
		return []byte("%}")
	case '#':
		return []byte("#}")
	default:
		return []byte("}}")
	}
}

// indexTagEnd finds closer in b. With quoted set, closers inside string
// literals are skipped.
func indexTagEnd(b, closer []byte, quoted bool) int {
	var quote byte
	for i := 0; i+1 < len(b); i++ {
		c := b[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case quoted && (c == '"' || c == '\''):
			quote = c
		case c == closer[0] && b[i+1] == closer[1]:
			return i
		}
	}
	return -1
}

// trimControl drops Jinja whitespace-control dashes and surrounding blanks
func trimControl(body string) string {
	body = strings.TrimPrefix(body, "-")
	body = strings.TrimSuffix(body, "-")
	return strings.TrimSpace(body)
}

func (t *TemplateRenderer) execStatement(stmt string, vars map[string]string) error {
	keyword, rest, _ := strings.Cut(stmt, " ")
	if keyword != "set" {
		return fmt.Errorf("%w: unsupported statement %q", entities.ErrTemplateSyntax, keyword)
	}
	name, expr, ok := strings.Cut(rest, "=")
	name = strings.TrimSpace(name)
	if !ok || !isIdent(name) {
		return fmt.Errorf("%w: malformed set statement %q", entities.ErrTemplateSyntax, stmt)
	}
	val, err := t.eval(strings.TrimSpace(expr), vars)
	if err != nil {
		return err
	}
	vars[name] = val
	return nil
}

func (t *TemplateRenderer) eval(expr string, vars map[string]string) (string, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return "", err
	}
	p := &exprParser{toks: toks, lookup: func(name string) (string, bool) {
		if v, ok := vars[name]; ok {
			return v, true
		}
		v, ok := t.context[name]
		return v, ok
	}}
	val, err := p.parseConcat()
	if err != nil {
		return "", err
	}
	if !p.done() {
		return "", fmt.Errorf("%w: unexpected %q in %q", entities.ErrTemplateSyntax, p.peek().text, expr)
	}
	return val, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	runes := []rune(s)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '"' || c == '\'':
			j := i + 1
			var sb strings.Builder
			for j < len(runes) && runes[j] != c {
				if runes[j] == '\\' && j+1 < len(runes) {
					j++
				}
				sb.WriteRune(runes[j])
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string in %q", entities.ErrTemplateSyntax, s)
			}
			toks = append(toks, token{kind: tokString, text: sb.String()})
			i = j + 1
		case unicode.IsDigit(c) || (c == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[i:j])})
			i = j
		case c == '_' || unicode.IsLetter(c):
			j := i + 1
			for j < len(runes) && (runes[j] == '_' || unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[i:j])})
			i = j
		case strings.ContainsRune("[]:|(),~", c):
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q in %q", entities.ErrTemplateSyntax, c, s)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty expression", entities.ErrTemplateSyntax)
	}
	return toks, nil
}

type exprParser struct {
	toks   []token
	pos    int
	lookup func(string) (string, bool)
}

func (p *exprParser) done() bool { return p.pos >= len(p.toks) }

func (p *exprParser) peek() token {
	if p.done() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *exprParser) accept(punct string) bool {
	if !p.done() && p.toks[p.pos].kind == tokPunct && p.toks[p.pos].text == punct {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) expect(punct string) error {
	if !p.accept(punct) {
		return fmt.Errorf("%w: expected %q", entities.ErrTemplateSyntax, punct)
	}
	return nil
}

// parseConcat: term ('~' term)*
func (p *exprParser) parseConcat() (string, error) {
	val, err := p.parseTerm()
	if err != nil {
		return "", err
	}
	for p.accept("~") {
		next, err := p.parseTerm()
		if err != nil {
			return "", err
		}
		val += next
	}
	return val, nil
}

// parseTerm: primary subscript* filter*
func (p *exprParser) parseTerm() (string, error) {
	val, err := p.parsePrimary()
	if err != nil {
		return "", err
	}
	for p.accept("[") {
		if val, err = p.parseSubscript(val); err != nil {
			return "", err
		}
	}
	for p.accept("|") {
		if val, err = p.parseFilter(val); err != nil {
			return "", err
		}
	}
	return val, nil
}

func (p *exprParser) parsePrimary() (string, error) {
	if p.done() {
		return "", fmt.Errorf("%w: unexpected end of expression", entities.ErrTemplateSyntax)
	}
	tok := p.toks[p.pos]
	p.pos++
	switch tok.kind {
	case tokString, tokNumber:
		return tok.text, nil
	case tokIdent:
		val, ok := p.lookup(tok.text)
		if !ok {
			return "", zerr.With(fmt.Errorf("%w: %s", entities.ErrUndefinedVariable, tok.text), "name", tok.text)
		}
		return val, nil
	default:
		return "", fmt.Errorf("%w: unexpected %q", entities.ErrTemplateSyntax, tok.text)
	}
}

func (p *exprParser) parseSubscript(val string) (string, error) {
	runes := []rune(val)
	from, hasFrom, err := p.optionalInt()
	if err != nil {
		return "", err
	}

	if !p.accept(":") {
		if err := p.expect("]"); err != nil {
			return "", err
		}
		if !hasFrom {
			return "", fmt.Errorf("%w: empty subscript", entities.ErrTemplateSyntax)
		}
		idx := normalizeIndex(from, len(runes))
		if idx < 0 || idx >= len(runes) {
			return "", fmt.Errorf("%w: index %d out of range for %q", entities.ErrTemplateSyntax, from, val)
		}
		return string(runes[idx]), nil
	}

	to, hasTo, err := p.optionalInt()
	if err != nil {
		return "", err
	}
	if err := p.expect("]"); err != nil {
		return "", err
	}
	lo, hi := 0, len(runes)
	if hasFrom {
		lo = clamp(normalizeIndex(from, len(runes)), len(runes))
	}
	if hasTo {
		hi = clamp(normalizeIndex(to, len(runes)), len(runes))
	}
	if lo >= hi {
		return "", nil
	}
	return string(runes[lo:hi]), nil
}

func (p *exprParser) optionalInt() (int, bool, error) {
	if p.done() || p.toks[p.pos].kind != tokNumber {
		return 0, false, nil
	}
	n, err := strconv.Atoi(p.toks[p.pos].text)
	if err != nil {
		return 0, false, fmt.Errorf("%w: bad index %q", entities.ErrTemplateSyntax, p.toks[p.pos].text)
	}
	p.pos++
	return n, true, nil
}

func (p *exprParser) parseFilter(val string) (string, error) {
	if p.done() || p.toks[p.pos].kind != tokIdent {
		return "", fmt.Errorf("%w: expected filter name", entities.ErrTemplateSyntax)
	}
	name := p.toks[p.pos].text
	p.pos++

	var args []string
	if p.accept("(") {
		for !p.accept(")") {
			if len(args) > 0 {
				if err := p.expect(","); err != nil {
					return "", err
				}
			}
			arg, err := p.parseTerm()
			if err != nil {
				return "", err
			}
			args = append(args, arg)
		}
	}

	switch name {
	case "lower":
		return strings.ToLower(val), nil
	case "upper":
		return strings.ToUpper(val), nil
	case "trim":
		return strings.TrimSpace(val), nil
	case "replace":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: replace takes 2 arguments", entities.ErrTemplateSyntax)
		}
		return strings.ReplaceAll(val, args[0], args[1]), nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", entities.ErrTemplateSyntax, name)
	}
}

func normalizeIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '_' || unicode.IsLetter(c) || (i > 0 && unicode.IsDigit(c)) {
			continue
		}
		return false
	}
	return true
}
