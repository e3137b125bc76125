package frame

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const urlMinLength = 3

var urlSchemes = []string{
	"http://www.",
	"https://www.",
	"http://",
	"https://",
}

// urlExpansions maps expansion codes 0x00..0x0D to their literal text.
var urlExpansions = []string{
	".com/",
	".org/",
	".edu/",
	".net/",
	".info/",
	".biz/",
	".gov/",
	".com",
	".org",
	".edu",
	".net",
	".info",
	".biz",
	".gov",
}

const (
	reservedLow  = 0x0e
	reservedHigh = 0x20
)

type URLFrame struct {
	TxPower int8
	Scheme  string
	URL     string
	Host    string
	Path    string
}

func (*URLFrame) Type() byte { return TypeURL }

func (f *URLFrame) String() string {
	return f.URL
}

// EncodeURLBody is the inverse of the body decoding performed by DecodeURLFrame: it replaces the
// first matching expansion literal at each position with its code. Used to build test frames and
// by the decode shell.
func EncodeURLBody(body string) []byte {
	var out []byte
	for len(body) > 0 {
		matched := false
		for code, literal := range urlExpansions {
			if strings.HasPrefix(body, literal) {
				out = append(out, byte(code))
				body = body[len(literal):]
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, body[0])
			body = body[1:]
		}
	}
	return out
}

func DecodeURLFrame(data []byte) (*URLFrame, error) {
	if len(data) < urlMinLength {
		return nil, newDecodeError(CategoryURL, "URL frame too short: expected at least %d bytes, got %d", urlMinLength, len(data))
	}
	schemeCode := int(data[2])
	if schemeCode >= len(urlSchemes) {
		return nil, &DecodeError{Category: CategoryURL, Err: errUnsupportedScheme}
	}

	var b strings.Builder
	b.WriteString(urlSchemes[schemeCode])
	for i, c := range data[urlMinLength:] {
		switch {
		case int(c) < len(urlExpansions):
			b.WriteString(urlExpansions[c])
		case c >= reservedLow && c <= reservedHigh:
			return nil, newDecodeError(CategoryURL, "invalid URL byte %02X at offset %d", c, i+urlMinLength)
		case c >= utf8.RuneSelf:
			// Bytes above 0x7F are taken as Latin-1 characters.
			b.WriteRune(rune(c))
		default:
			b.WriteByte(c)
		}
	}

	f := &URLFrame{
		TxPower: int8(data[1]),
		Scheme:  urlSchemes[schemeCode],
		URL:     b.String(),
	}
	if parsed, err := url.Parse(f.URL); err == nil {
		f.Host, f.Path = parsed.Hostname(), parsed.Path
	} else {
		// Beacons are free to advertise text that is not a valid URL; the host is still the part
		// between the scheme and the first slash.
		rest := f.URL[strings.Index(f.URL, "://")+len("://"):]
		f.Host, f.Path = rest, ""
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			f.Host, f.Path = rest[:i], rest[i:]
		}
	}
	return f, nil
}
