package fetcher

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Korean spreadsheet exports label their encoding in ways the WHATWG index
// does not know.
var charsetAliases = map[string]string{
	"cp949": "euc-kr",
	"ms949": "euc-kr",
	"uhc":   "euc-kr",
}

// DecodeText reads r fully and returns it as NFC-normalized UTF-8.
// With an empty charset, valid UTF-8 is used as is (minus a BOM) and
// anything else is decoded as EUC-KR.
func DecodeText(r io.Reader, charset string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrap(err, "charset: read input")
	}

	charset = strings.ToLower(strings.TrimSpace(charset))
	if alias, ok := charsetAliases[charset]; ok {
		charset = alias
	}

	if charset == "" || charset == "utf-8" || charset == "utf8" {
		trimmed := bytes.TrimPrefix(data, utf8BOM)
		if utf8.Valid(trimmed) {
			return norm.NFC.String(string(trimmed)), nil
		}
		if charset != "" {
			return "", eris.New("charset: input is not valid utf-8")
		}
		charset = "euc-kr"
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", eris.Wrapf(err, "charset: unsupported charset %q", charset)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", eris.Wrapf(err, "charset: decode %s", charset)
	}
	return norm.NFC.String(string(decoded)), nil
}
