package variant

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parse reads a plain-ejson document and builds the corresponding value
// tree. It is the inverse of Serialize with FormatPlainEJSON, satisfying
// the round-trip property in spec §8 on the subset Serialize emits.
func Parse(text string) (*Value, error) {
	p := &parser{s: text}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("variant: trailing data at offset %d", p.pos)
	}
	return v, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) parseValue() (*Value, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("variant: unexpected end of input")
	}
	switch c := p.peek(); {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		return p.parseQuotedString()
	case c == 't' || c == 'f':
		return p.parseBool()
	case c == 'n':
		return p.parseNull()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return nil, fmt.Errorf("variant: unexpected character %q at offset %d", c, p.pos)
	}
}

func (p *parser) parseBool() (*Value, error) {
	if strings.HasPrefix(p.s[p.pos:], "true") {
		p.pos += 4
		return MakeBool(true), nil
	}
	if strings.HasPrefix(p.s[p.pos:], "false") {
		p.pos += 5
		return MakeBool(false), nil
	}
	return nil, fmt.Errorf("variant: invalid literal at offset %d", p.pos)
}

func (p *parser) parseNull() (*Value, error) {
	if strings.HasPrefix(p.s[p.pos:], "null") {
		p.pos += 4
		return Null, nil
	}
	return nil, fmt.Errorf("variant: invalid literal at offset %d", p.pos)
}

func (p *parser) parseNumber() (*Value, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.s) && isNumChar(p.s[p.pos]) {
		p.pos++
	}
	n, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("variant: invalid number at offset %d: %w", start, err)
	}
	return MakeNumber(n), nil
}

func isNumChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}

func (p *parser) parseRawString() (string, error) {
	if p.peek() != '"' {
		return "", fmt.Errorf("variant: expected string at offset %d", p.pos)
	}
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '"' {
			p.pos++
			return sb.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.s) {
				return "", fmt.Errorf("variant: unterminated escape")
			}
			esc := p.s[p.pos]
			switch esc {
			case '"', '\\', '/':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'u':
				if p.pos+4 >= len(p.s) {
					return "", fmt.Errorf("variant: short unicode escape")
				}
				code, err := strconv.ParseUint(p.s[p.pos+1:p.pos+5], 16, 32)
				if err != nil {
					return "", err
				}
				var buf [utf8.UTFMax]byte
				n := utf8.EncodeRune(buf[:], rune(code))
				sb.Write(buf[:n])
				p.pos += 4
			default:
				return "", fmt.Errorf("variant: invalid escape \\%c", esc)
			}
			p.pos++
			continue
		}
		sb.WriteByte(c)
		p.pos++
	}
	return "", fmt.Errorf("variant: unterminated string")
}

func (p *parser) parseQuotedString() (*Value, error) {
	s, err := p.parseRawString()
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(s, "bx"):
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("variant: invalid byte-seq literal: %w", err)
		}
		return MakeBytes(b), nil
	case strings.HasPrefix(s, "b64:"):
		b, err := base64.StdEncoding.DecodeString(s[4:])
		if err != nil {
			return nil, fmt.Errorf("variant: invalid base64 byte-seq literal: %w", err)
		}
		return MakeBytes(b), nil
	default:
		return MakeString(s), nil
	}
}

func (p *parser) parseArray() (*Value, error) {
	p.pos++ // consume '['
	out := MakeArray()
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return out, nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			out.Unref()
			return nil, err
		}
		out.ArrayAppend(v)
		v.Unref()
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return out, nil
		default:
			out.Unref()
			return nil, fmt.Errorf("variant: expected ',' or ']' at offset %d", p.pos)
		}
	}
}

func (p *parser) parseObject() (*Value, error) {
	p.pos++ // consume '{'
	out := MakeObject()
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return out, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseRawString()
		if err != nil {
			out.Unref()
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			out.Unref()
			return nil, fmt.Errorf("variant: expected ':' at offset %d", p.pos)
		}
		p.pos++
		v, err := p.parseValue()
		if err != nil {
			out.Unref()
			return nil, err
		}
		out.ObjectSet(key, v)
		v.Unref()
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return out, nil
		default:
			out.Unref()
			return nil, fmt.Errorf("variant: expected ',' or '}' at offset %d", p.pos)
		}
	}
}
