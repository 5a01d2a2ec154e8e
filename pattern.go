package patternscan

import (
	"strconv"
	"strings"
)

// Token is a single position of a Pattern: either an exact byte or a
// wildcard matching any byte.
type Token struct {
	value    byte
	wildcard bool
}

// Wildcard matches any byte.
var Wildcard = Token{wildcard: true}

// Exact returns a token matching only b.
func Exact(b byte) Token {
	return Token{value: b}
}

func (t Token) IsWildcard() bool { return t.wildcard }

// Value returns the byte an exact token matches. It is 0 for Wildcard.
func (t Token) Value() byte { return t.value }

func (t Token) Matches(b byte) bool {
	return t.wildcard || t.value == b
}

func (t Token) String() string {
	if t.wildcard {
		return "?"
	}
	const hexdigits = "0123456789abcdef"
	return string([]byte{hexdigits[t.value>>4], hexdigits[t.value&0x0f]})
}

// Pattern is an immutable, ordered list of tokens. It is safe to share a
// Pattern between goroutines and Scanners.
type Pattern struct {
	tokens   []Token
	wildcard bool
}

// Compile parses a pattern such as "8d 11 ? ? 8f". Tokens are separated by
// ASCII whitespace; each one is "?" or one or two hex digits in either case.
func Compile(s string) (*Pattern, error) {
	fields := strings.FieldsFunc(s, isASCIISpace)
	tokens := make([]Token, 0, len(fields))
	for i, field := range fields {
		tok, err := parseToken(field)
		if err != nil {
			return nil, &TokenError{Token: field, Index: i}
		}
		tokens = append(tokens, tok)
	}
	return newPattern(tokens)
}

// MustCompile is like Compile but panics if s cannot be parsed.
func MustCompile(s string) *Pattern {
	p, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPattern builds a Pattern from tokens. The slice is copied.
func NewPattern(tokens ...Token) (*Pattern, error) {
	return newPattern(append([]Token(nil), tokens...))
}

// Literal returns a wildcard-free Pattern matching exactly b.
func Literal(b []byte) (*Pattern, error) {
	tokens := make([]Token, len(b))
	for i, c := range b {
		tokens[i] = Exact(c)
	}
	return newPattern(tokens)
}

func newPattern(tokens []Token) (*Pattern, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyPattern
	}
	p := &Pattern{tokens: tokens}
	for _, t := range tokens {
		if t.wildcard {
			p.wildcard = true
			break
		}
	}
	return p, nil
}

func parseToken(s string) (Token, error) {
	if s == "?" {
		return Wildcard, nil
	}
	if len(s) > 2 || !isHex(s) {
		return Token{}, ErrInvalidPatternToken
	}
	n, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return Token{}, err
	}
	return Exact(byte(n)), nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case '0' <= c && c <= '9', 'a' <= c && c <= 'f', 'A' <= c && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ASCII whitespace, vertical tab excluded.
func isASCIISpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\f' || r == '\r'
}

// Len returns the number of tokens.
func (p *Pattern) Len() int { return len(p.tokens) }

// HasWildcard reports whether any token is a wildcard.
func (p *Pattern) HasWildcard() bool { return p.wildcard }

// Tokens returns a copy of the pattern's tokens.
func (p *Pattern) Tokens() []Token {
	return append([]Token(nil), p.tokens...)
}

func (p *Pattern) String() string {
	var sb strings.Builder
	sb.Grow(3 * len(p.tokens))
	for i, t := range p.tokens {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.String())
	}
	return sb.String()
}

// Match reports whether b starts with bytes matching p. A b shorter than
// the pattern never matches.
func (p *Pattern) Match(b []byte) bool {
	if len(b) < len(p.tokens) {
		return false
	}
	for k, t := range p.tokens {
		if !t.wildcard && t.value != b[k] {
			return false
		}
	}
	return true
}

// MatchAt reports whether p matches buf starting at offset i.
func (p *Pattern) MatchAt(buf []byte, i int) bool {
	if i < 0 || i > len(buf) {
		return false
	}
	return p.Match(buf[i:])
}

// Index returns the offset of the first match of p in data, or -1.
func (p *Pattern) Index(data []byte) int {
	for i := 0; i+len(p.tokens) <= len(data); i++ {
		if p.Match(data[i:]) {
			return i
		}
	}
	return -1
}

// IndexAll returns the offsets of all, possibly overlapping, matches of p in
// data in ascending order.
func (p *Pattern) IndexAll(data []byte) []int {
	var out []int
	for i := 0; i+len(p.tokens) <= len(data); i++ {
		if p.Match(data[i:]) {
			out = append(out, i)
		}
	}
	return out
}

// Find compiles pattern and returns the offset of its first match in data.
// ok is false when there is none.
func Find(data []byte, pattern string) (offset int, ok bool, err error) {
	p, err := Compile(pattern)
	if err != nil {
		return -1, false, err
	}
	offset = p.Index(data)
	return offset, offset >= 0, nil
}

// FindAll compiles pattern and returns every match offset in data.
func FindAll(data []byte, pattern string) ([]int, error) {
	p, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	return p.IndexAll(data), nil
}
