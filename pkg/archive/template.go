// Package archive streams output records into a keyed set of files: a path
// template expands per record, and a capacity-bounded cache of open handles
// evicts idle entries under the file-descriptor budget.
package archive

import (
	"fmt"
	"strings"

	"github.com/seisflow/seisflow/internal/model"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
)

// Substitution codes. '%' marks a defining field (part of the routing key),
// '#' a non-defining one (expanded into the filename only).
//
//	n s l c  network, station, location, channel
//	Y y      4-digit / 2-digit year
//	j        day of year (001-366)
//	H M S    hour, minute, second
//	F        fractional seconds (6-digit microseconds)
//	q        quality code
//	L        record length in bytes
//	r R      sample rate, rounded / precise
//	%        literal '%' (written "%%"), likewise "##" for '#'
type token struct {
	literal  string // set for literal runs, empty for code tokens
	code     byte
	defining bool
}

// Template is a compiled archive path template.
type Template struct {
	raw    string
	tokens []token
}

// Compile parses a path template once into an ordered token list.
func Compile(raw string) (*Template, error) {
	if raw == "" {
		return nil, seiserr.New(seiserr.CodeBadTemplate, "empty archive template")
	}

	t := &Template{raw: raw}
	var lit strings.Builder
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if ch != '%' && ch != '#' {
			lit.WriteByte(ch)
			continue
		}
		if i+1 >= len(raw) {
			return nil, seiserr.New(seiserr.CodeBadTemplate, "template ends with bare flag").
				WithContext("template", raw)
		}
		next := raw[i+1]
		i++
		if next == ch {
			// "%%" and "##" are the literal escapes.
			lit.WriteByte(ch)
			continue
		}
		if !validCode(next) {
			return nil, seiserr.New(seiserr.CodeBadTemplate, "unknown template code").
				WithContext("code", string(rune(next))).
				WithContext("template", raw)
		}
		if lit.Len() > 0 {
			t.tokens = append(t.tokens, token{literal: lit.String()})
			lit.Reset()
		}
		t.tokens = append(t.tokens, token{code: next, defining: ch == '%'})
	}
	if lit.Len() > 0 {
		t.tokens = append(t.tokens, token{literal: lit.String()})
	}
	return t, nil
}

// String returns the raw template.
func (t *Template) String() string {
	return t.raw
}

// Expand expands the template for one record. The definition key is the
// concatenation of only the defining expansions and routes the record; the
// full expansion is the filename.
func (t *Template) Expand(rec *model.RecordRef) (key, path string) {
	var keyB, pathB strings.Builder
	for _, tok := range t.tokens {
		if tok.literal != "" {
			pathB.WriteString(tok.literal)
			continue
		}
		v := expandCode(tok.code, rec)
		pathB.WriteString(v)
		if tok.defining {
			keyB.WriteString(v)
			keyB.WriteByte(0)
		}
	}
	return keyB.String(), pathB.String()
}

func validCode(c byte) bool {
	switch c {
	case 'n', 's', 'l', 'c', 'Y', 'y', 'j', 'H', 'M', 'S', 'F', 'q', 'L', 'r', 'R':
		return true
	}
	return false
}

func expandCode(c byte, rec *model.RecordRef) string {
	net, sta, loc, cha := model.SplitIdentity(rec.Identity)
	tm := rec.EffectiveStart().Time()
	switch c {
	case 'n':
		return net
	case 's':
		return sta
	case 'l':
		return loc
	case 'c':
		return cha
	case 'Y':
		return fmt.Sprintf("%04d", tm.Year())
	case 'y':
		return fmt.Sprintf("%02d", tm.Year()%100)
	case 'j':
		return fmt.Sprintf("%03d", tm.YearDay())
	case 'H':
		return fmt.Sprintf("%02d", tm.Hour())
	case 'M':
		return fmt.Sprintf("%02d", tm.Minute())
	case 'S':
		return fmt.Sprintf("%02d", tm.Second())
	case 'F':
		return fmt.Sprintf("%06d", tm.Nanosecond()/1000)
	case 'q':
		return rec.Quality.String()
	case 'L':
		return fmt.Sprintf("%d", rec.Length)
	case 'r':
		return fmt.Sprintf("%d", int64(rec.SampleRate+0.5))
	case 'R':
		return fmt.Sprintf("%g", rec.SampleRate)
	}
	return ""
}
