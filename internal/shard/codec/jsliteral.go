package codec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// ParseJSVar finds `var <name> = <literal>` in a JavaScript source file and
// parses the literal. Only the data subset Doxygen emits is understood:
// arrays, objects, quoted strings, integers, true/false/null. Arrays decode
// to []any, objects to map[string]any, numbers to int64.
func ParseJSVar(src []byte, name string) (any, error) {
	start, err := findVar(src, name)
	if err != nil {
		return nil, err
	}
	p := &jsParser{src: src, pos: start}
	v, err := p.value()
	if err != nil {
		return nil, fmt.Errorf("%w: var %s: %v", apperrors.ErrInvalidShard, name, err)
	}
	return v, nil
}

func findVar(src []byte, name string) (int, error) {
	needle := []byte("var " + name)
	from := 0
	for {
		i := bytes.Index(src[from:], needle)
		if i < 0 {
			return 0, fmt.Errorf("%w: var %s not found", apperrors.ErrInvalidShard, name)
		}
		at := from + i + len(needle)
		rest := bytes.TrimLeft(src[at:], " \t\r\n")
		if len(rest) > 0 && rest[0] == '=' {
			return len(src) - len(rest) + 1, nil
		}
		from = at
	}
}

// maxNesting bounds array/object depth. Doxygen data nests four levels.
const maxNesting = 64

type jsParser struct {
	src   []byte
	pos   int
	depth int
}

func (p *jsParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *jsParser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.pos++
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
			end := bytes.Index(p.src[p.pos+2:], []byte("*/"))
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos += end + 4
		default:
			return
		}
	}
}

func (p *jsParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *jsParser) value() (any, error) {
	switch c := p.peek(); {
	case c == '[', c == '{':
		if p.depth >= maxNesting {
			return nil, p.errorf("nesting deeper than %d", maxNesting)
		}
		p.depth++
		defer func() { p.depth-- }()
		if c == '[' {
			return p.array()
		}
		return p.object()
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	default:
		word := p.ident()
		switch word {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		return nil, p.errorf("unexpected token %q", word)
	}
}

func (p *jsParser) array() ([]any, error) {
	p.pos++
	out := make([]any, 0, 4)
	for {
		if p.peek() == ']' {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
		default:
			return nil, p.errorf("expected , or ] in array")
		}
	}
}

func (p *jsParser) object() (map[string]any, error) {
	p.pos++
	out := make(map[string]any)
	for {
		c := p.peek()
		if c == '}' {
			p.pos++
			return out, nil
		}
		var key string
		switch {
		case c == '\'' || c == '"':
			s, err := p.str()
			if err != nil {
				return nil, err
			}
			key = s
		case c >= '0' && c <= '9':
			n, err := p.number()
			if err != nil {
				return nil, err
			}
			key = strconv.FormatInt(n, 10)
		default:
			key = p.ident()
			if key == "" {
				return nil, p.errorf("expected object key")
			}
		}
		if p.peek() != ':' {
			return nil, p.errorf("expected : after key %q", key)
		}
		p.pos++
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out[key] = v
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.errorf("expected , or } in object")
		}
	}
}

func (p *jsParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	return string(p.src[start:p.pos])
}

func (p *jsParser) number() (int64, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.ParseInt(string(p.src[start:p.pos]), 10, 64)
	if err != nil {
		return 0, p.errorf("bad number %q", p.src[start:p.pos])
	}
	return n, nil
}

func (p *jsParser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			p.pos++
			if err := p.escape(&b); err != nil {
				return "", err
			}
		case c == '\n':
			return "", p.errorf("newline in string")
		default:
			r, size := utf8.DecodeRune(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *jsParser) escape(b *strings.Builder) error {
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'x', 'u':
		width := 2
		if c == 'u' {
			width = 4
		}
		if p.pos+width > len(p.src) {
			return p.errorf("short \\%c escape", c)
		}
		n, err := strconv.ParseUint(string(p.src[p.pos:p.pos+width]), 16, 32)
		if err != nil {
			return p.errorf("bad \\%c escape", c)
		}
		b.WriteRune(rune(n))
		p.pos += width
	default:
		r, size := utf8.DecodeRune(p.src[p.pos-1:])
		b.WriteRune(r)
		p.pos += size - 1
	}
	return nil
}
