// Package textutil normalizes user text for URLs, file paths and XML output.
package textutil

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	xhtml "golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultLengthLimit caps the byte length of paths and slugs
const DefaultLengthLimit = 250

var (
	defaultSeparators = regexp.MustCompile(`[.'’ ]+`)
	whitespace        = regexp.MustCompile(`\s+`)
	dashes            = regexp.MustCompile(`-+`)

	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	// Letters that do not decompose into an ASCII base letter
	transliterations = map[rune]string{
		'Æ': "AE", 'æ': "ae", 'Œ': "OE", 'œ': "oe", 'ß': "ss",
		'Ø': "O", 'ø': "o", 'Đ': "D", 'đ': "d", 'Ł': "L", 'ł': "l",
		'Þ': "TH", 'þ': "th", 'Ð': "D", 'ð': "d", 'ı': "i",
		'‘': "'", '’': "'", '‚': "'", '“': `"`, '”': `"`, '„': `"`,
		'–': "-", '—': "-", '…': "...", '€': "EUR", '«': "<<", '»': ">>",
		' ': " ",
	}

	urlReplacer = strings.NewReplacer("%", "percent", "€", "euro", "“", `"`, "”", `"`, "…", "...")
)

// ToASCII decodes HTML entities and transliterates s to ASCII. Characters
// without an ASCII form are dropped.
func ToASCII(s string) string {
	s = html.UnescapeString(ToUTF8(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		if t, ok := transliterations[r]; ok {
			b.WriteString(t)
			continue
		}
		base, _, err := transform.String(stripMarks, string(r))
		if err != nil {
			continue
		}
		for _, c := range base {
			if c < utf8.RuneSelf {
				b.WriteRune(c)
			}
		}
	}
	return b.String()
}

// ToUTF8 returns s unchanged when it is valid UTF-8 and otherwise decodes it
// as ISO-8859-1.
func ToUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return out
}

type options struct {
	extension    string
	spaceReplace string
	lengthLimit  int
	separators   *regexp.Regexp
}

// Option tunes ToPath and Urlize
type Option func(*options)

// WithExtension appends ext after truncation
func WithExtension(ext string) Option {
	return func(o *options) { o.extension = ext }
}

// WithSpaceReplace sets the string runs of whitespace collapse to
func WithSpaceReplace(r string) Option {
	return func(o *options) { o.spaceReplace = r }
}

// WithLengthLimit sets the maximum byte length before the extension
func WithLengthLimit(n int) Option {
	return func(o *options) { o.lengthLimit = n }
}

// WithSeparators sets the pattern Urlize turns into word breaks
func WithSeparators(re *regexp.Regexp) Option {
	return func(o *options) { o.separators = re }
}

func apply(o options, opts []Option) options {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func pathSafe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("_-.~+ \t\n\r\f\v", c) >= 0:
		case c == '%':
			// only keep percent-encoded sequences
			if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
				continue
			}
		default:
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ToPath reduces s to characters safe in a file name or URL path segment.
// Whitespace is removed unless WithSpaceReplace is given.
func ToPath(s string, opts ...Option) string {
	o := apply(options{lengthLimit: DefaultLengthLimit}, opts)
	return toPath(s, o)
}

func toPath(s string, o options) string {
	s = strings.TrimSpace(pathSafe(ToASCII(s)))
	s = whitespace.ReplaceAllString(s, o.spaceReplace)
	if o.lengthLimit > 0 && len(s) > o.lengthLimit {
		s = s[:o.lengthLimit]
	}
	return s + o.extension
}

// Urlize turns s into a lower-case slug with words joined by dashes
func Urlize(s string, opts ...Option) string {
	o := apply(options{
		spaceReplace: "-",
		lengthLimit:  DefaultLengthLimit,
		separators:   defaultSeparators,
	}, opts)

	s = urlReplacer.Replace(s)
	if o.separators != nil {
		s = o.separators.ReplaceAllString(s, " ")
	}
	return strings.ToLower(dashes.ReplaceAllString(toPath(s, o), "-"))
}

// StripTags returns the text content of an HTML fragment
func StripTags(s string) string {
	z := xhtml.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return b.String()
		case xhtml.TextToken:
			b.Write(z.Raw())
		}
	}
}

var xmlEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;", "&", "&amp;")

// ToXMLCompliant decodes entities and escapes the characters XML reserves.
// With stripTags the markup is removed first.
func ToXMLCompliant(s string, stripTags bool) string {
	if stripTags {
		s = StripTags(s)
	}
	return xmlEscaper.Replace(html.UnescapeString(s))
}

// Truncate shortens text to length runes including the ellipsis. With
// lastSpace the cut happens before the last partial word.
func Truncate(text string, length int, ellipsis string, lastSpace bool) string {
	if text == "" {
		return ""
	}
	r := []rune(text)
	if len(r) <= length {
		return text
	}

	keep := length - utf8.RuneCountInString(ellipsis)
	if keep < 0 {
		keep = 0
	}
	cut := string(r[:keep])
	if lastSpace {
		if i := strings.LastIndexFunc(cut, unicode.IsSpace); i >= 0 {
			cut = strings.TrimRightFunc(cut[:i], unicode.IsSpace)
		}
	}
	return cut + ellipsis
}
