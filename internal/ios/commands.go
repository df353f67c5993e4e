package ios

// Command bytes follow a NUL in the host's output.
const (
	StartIOS            byte = 1
	ClearScreen         byte = 2
	ClearEOL            byte = 3
	SetColor            byte = 4
	MoveCursor          byte = 7
	CursorOff           byte = 8
	SetCursorUnderscore byte = 9
	SetCursorFullBlock  byte = 10
	SetCursorHalfBlock  byte = 11
	OutputString        byte = 14
	ScrollBoxUp         byte = 28
	ScrollBoxDown       byte = 29
	StopIOS             byte = 34
	Bell                byte = 36
	FileExists          byte = 40
	FileOpen            byte = 41
	FileNewline         byte = 42
	FileWriteString     byte = 43
	FileClose           byte = 44
	FileReadString      byte = 45
	OSCommand           byte = 48
	KeyboardLock        byte = 50
	KeyboardUnlock      byte = 51
	AreYouAlive         byte = 56
	LocalAction         byte = 57
	FileBinaryWrite     byte = 59
	FileBinaryRead      byte = 60
	GetConsoleSize      byte = 61
	GetVersion          byte = 62
	MouseEnable         byte = 63
	MouseDisable        byte = 64
	GetCwd              byte = 70
	ReadIni             byte = 71
	GetTempDir          byte = 72
	Unhandled99         byte = 99
)

const (
	esc = 0x1b
	soh = 0x01
)

// Version is reported to GetVersion.
const Version = "3.13"

// parameter lengths of the fixed-size commands
var fixedParams = map[byte]int{
	SetColor:      1,
	MoveCursor:    2,
	ScrollBoxUp:   6,
	ScrollBoxDown: 6,
	Bell:          1,
	AreYouAlive:   1,
	MouseEnable:   1,
	Unhandled99:   9,
}

// commands whose parameters end at a NUL
var stringParams = map[byte]bool{
	OutputString:    true,
	FileExists:      true,
	FileOpen:        true,
	FileWriteString: true,
	FileReadString:  true,
	OSCommand:       true,
	LocalAction:     true,
	FileBinaryWrite: true,
	FileBinaryRead:  true,
	ReadIni:         true,
}

// prefixes forwarded to the coprocess ahead of file request parameters
var filePrefix = map[byte]byte{
	FileReadString:  'R',
	FileWriteString: 'W',
	FileBinaryRead:  'r',
	FileBinaryWrite: 'w',
}

func commandName(cmd byte) string {
	switch cmd {
	case StartIOS:
		return "START_IOS"
	case ClearScreen:
		return "CLEAR_SCREEN"
	case ClearEOL:
		return "CLEAR_EOL"
	case SetColor:
		return "SET_COLOR"
	case MoveCursor:
		return "MOVE_CURSOR"
	case CursorOff:
		return "CURSOR_OFF"
	case SetCursorUnderscore:
		return "SET_CURSOR_UNDERSCORE"
	case SetCursorFullBlock:
		return "SET_CURSOR_FULLBLOCK"
	case SetCursorHalfBlock:
		return "SET_CURSOR_HALFBLOCK"
	case OutputString:
		return "OUTPUT_STRING"
	case ScrollBoxUp:
		return "SCROLL_BOX_UP"
	case ScrollBoxDown:
		return "SCROLL_BOX_DOWN"
	case StopIOS:
		return "STOP_IOS"
	case Bell:
		return "BELL"
	case FileExists:
		return "FILE_EXISTS"
	case FileOpen:
		return "FILE_OPEN"
	case FileNewline:
		return "FILE_NEWLINE"
	case FileWriteString:
		return "FILE_WRITE_STRING"
	case FileClose:
		return "FILE_CLOSE"
	case FileReadString:
		return "FILE_READ_STRING"
	case OSCommand:
		return "OS_COMMAND"
	case KeyboardLock:
		return "KEYBOARD_LOCK"
	case KeyboardUnlock:
		return "KEYBOARD_UNLOCK"
	case AreYouAlive:
		return "ARE_YOU_ALIVE"
	case LocalAction:
		return "LOCAL_ACTION"
	case FileBinaryWrite:
		return "FILE_BINARY_WRITE"
	case FileBinaryRead:
		return "FILE_BINARY_READ"
	case GetConsoleSize:
		return "GET_CONSOLE_SIZE"
	case GetVersion:
		return "GET_VERSION"
	case MouseEnable:
		return "MOUSE_ENABLE"
	case MouseDisable:
		return "MOUSE_DISABLE"
	case GetCwd:
		return "GET_CWD"
	case ReadIni:
		return "READ_INI"
	case GetTempDir:
		return "GET_TEMPORARY_DIRECTORY"
	case Unhandled99:
		return "UNHANDLED_99"
	}
	return "UNKNOWN"
}
