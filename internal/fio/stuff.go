// Package fio implements the helper side of the coprocess file protocol:
// one command per line on stdin, responses on stdout.
package fio

const (
	soh = 0x01
	lf  = 0x0a
	cr  = 0x0d
	esc = 0x1b

	stuffOffset = 0x64
)

func reserved(c byte) bool {
	switch c {
	case 0, soh, lf, cr, esc:
		return true
	}
	return false
}

// Stuff replaces each reserved byte c with SOH, c+0x64 so that the result
// never contains NUL, SOH, LF, CR or ESC.
func Stuff(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, c := range p {
		if reserved(c) {
			out = append(out, soh, c+stuffOffset)
		} else {
			out = append(out, c)
		}
	}
	return out
}

// Unstuff reverses Stuff. A trailing SOH with nothing after it is kept.
func Unstuff(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == soh && i+1 < len(p) {
			i++
			out = append(out, p[i]-stuffOffset)
		} else {
			out = append(out, p[i])
		}
	}
	return out
}
