package testutil

// SampleFiles contains test file contents keyed by file name.
var SampleFiles = map[string]string{
	"report.txt": "hello",
	"notes.md":   "# Notes\n\n- encrypt everything\n- log nothing sensitive\n",
	"empty.txt":  "",
	"unicode.md": "Hello, 世界! 🌍",
}

// SampleBinaryFiles contains binary test data.
var SampleBinaryFiles = map[string][]byte{
	"image.png": {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"data.bin":  {0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD},
}
