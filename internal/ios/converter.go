package ios

import (
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const convertChunk = 6 * 1024

// converter decodes host text into UTF-8. It keeps decoder state between
// calls so a multi-byte sequence may span calls when final is false.
type converter struct {
	dec     transform.Transformer
	scratch []byte
}

func newConverter(enc encoding.Encoding) *converter {
	return &converter{
		dec:     enc.NewDecoder(),
		scratch: make([]byte, convertChunk),
	}
}

// convert decodes src. If final is false an incomplete trailing sequence is
// returned as rest; otherwise it is decoded as best the encoding can and the
// decoder starts over.
func (c *converter) convert(src []byte, final bool) (out, rest []byte, err error) {
	if final {
		defer c.dec.Reset()
	}
	for {
		nDst, nSrc, terr := c.dec.Transform(c.scratch, src, final)
		out = append(out, c.scratch[:nDst]...)
		src = src[nSrc:]
		switch {
		case terr == nil:
			return out, nil, nil
		case errors.Is(terr, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				return out, nil, errors.Wrap(terr, "ios: convert")
			}
		case errors.Is(terr, transform.ErrShortSrc):
			return out, src, nil
		default:
			return out, nil, errors.Wrap(terr, "ios: convert")
		}
	}
}

// printable reports whether r may be drawn on the display.
func printable(r rune) bool {
	switch r {
	case 0x7f, '\b', '\a':
		return true
	}
	return unicode.IsPrint(r) || unicode.IsSpace(r)
}

// show draws text up to the first NUL rune.
func show(d Display, text []byte) {
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)
		text = text[size:]
		if r == 0 {
			return
		}
		if printable(r) {
			d.PutChar(r)
		}
	}
}
