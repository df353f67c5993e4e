package telnet

const (
	// RFC 885
	EOR = 239 + iota // ef
	// RFC 854
	SE   // f0
	NOP  // f1
	DM   // f2
	BRK  // f3
	IP   // f4
	AO   // f5
	AYT  // f6
	EC   // f7
	EL   // f8
	GA   // f9
	SB   // fa
	WILL // fb
	WONT // fc
	DO   // fd
	DONT // fe
	IAC  // ff
)

const (
	Echo         = 1  // RFC 857
	TerminalType = 24 // RFC 1091
	NAWS         = 31 // RFC 1073
)

// RFC 1091
const (
	TerminalTypeIs   = 0
	TerminalTypeSend = 1
)

const (
	nul = '\x00'
	lf  = '\n'
	cr  = '\r'
)
