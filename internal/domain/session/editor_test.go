package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineEditorFeed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []editOp
	}{
		{
			name:  "submit on carriage return",
			input: "ls\r",
			want:  []editOp{{kind: opEcho, text: "ls\r\n"}, {kind: opSubmit, text: "ls"}},
		},
		{
			name:  "crlf is one terminator",
			input: "ls\r\n",
			want:  []editOp{{kind: opEcho, text: "ls\r\n"}, {kind: opSubmit, text: "ls"}},
		},
		{
			name:  "bare line feed submits",
			input: "pwd\n",
			want:  []editOp{{kind: opEcho, text: "pwd\r\n"}, {kind: opSubmit, text: "pwd"}},
		},
		{
			name:  "blank line prompts",
			input: "  \r",
			want:  []editOp{{kind: opEcho, text: "  \r\n"}, {kind: opPrompt}},
		},
		{
			name:  "backspace erases",
			input: "lx\x7fs\r",
			want:  []editOp{{kind: opEcho, text: "lx\b \bs\r\n"}, {kind: opSubmit, text: "ls"}},
		},
		{
			name:  "ctrl-h erases",
			input: "a\x08",
			want:  []editOp{{kind: opEcho, text: "a\b \b"}},
		},
		{
			name:  "backspace on empty buffer is silent",
			input: "\x7f\x7f",
			want:  nil,
		},
		{
			name:  "interrupt clears the buffer",
			input: "rm -rf\x03",
			want:  []editOp{{kind: opEcho, text: "rm -rf^C\r\n"}, {kind: opInterrupt}},
		},
		{
			name:  "cursor keys are swallowed",
			input: "\x1b[A\x1b[1;5Cl\x1bOBs",
			want:  []editOp{{kind: opEcho, text: "ls"}},
		},
		{
			name:  "tab becomes a space",
			input: "ls\t-l\r",
			want:  []editOp{{kind: opEcho, text: "ls -l\r\n"}, {kind: opSubmit, text: "ls -l"}},
		},
		{
			name:  "multibyte runes",
			input: "echo héllo\r",
			want:  []editOp{{kind: opEcho, text: "echo héllo\r\n"}, {kind: opSubmit, text: "echo héllo"}},
		},
		{
			name:  "other control bytes are ignored",
			input: "a\x07\x01b",
			want:  []editOp{{kind: opEcho, text: "ab"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e lineEditor
			assert.Equal(t, tt.want, e.feed(tt.input))
		})
	}
}

func TestLineEditorAcrossChunks(t *testing.T) {
	var e lineEditor

	assert.Equal(t, []editOp{{kind: opEcho, text: "l"}}, e.feed("l"))
	assert.Equal(t, []editOp{{kind: opEcho, text: "s"}}, e.feed("s"))
	assert.Equal(t, "ls", e.pending())

	ops := e.feed("\r")
	assert.Equal(t, []editOp{{kind: opEcho, text: "\r\n"}, {kind: opSubmit, text: "ls"}}, ops)

	// the LF of a split CRLF must not submit an empty line
	assert.Empty(t, e.feed("\n"))

	// escape sequence split over two reads
	assert.Empty(t, e.feed("\x1b"))
	assert.Empty(t, e.feed("[D"))
	assert.Equal(t, "", e.pending())
}

func TestLineEditorInterruptThenEnter(t *testing.T) {
	var e lineEditor

	e.feed("c")
	e.feed("at big.log")
	assert.Equal(t, "cat big.log", e.pending())

	ops := e.feed("\x03")
	assert.Equal(t, []editOp{{kind: opEcho, text: "^C\r\n"}, {kind: opInterrupt}}, ops)

	ops = e.feed("\r")
	assert.Equal(t, []editOp{{kind: opEcho, text: "\r\n"}, {kind: opPrompt}}, ops)
}

func TestLineEditorReset(t *testing.T) {
	var e lineEditor
	e.feed("abc\x1b[")
	e.reset()

	assert.Equal(t, "", e.pending())
	assert.Equal(t, []editOp{{kind: opEcho, text: "x"}}, e.feed("x"))
}

func TestLineEditorWholeLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []editOp
	}{
		{
			name:  "unterminated line submits",
			input: "cd ../../etc",
			want:  []editOp{{kind: opEcho, text: "cd ../../etc\r\n"}, {kind: opSubmit, text: "cd ../../etc"}},
		},
		{
			name:  "two characters are a line",
			input: "ls",
			want:  []editOp{{kind: opEcho, text: "ls\r\n"}, {kind: opSubmit, text: "ls"}},
		},
		{
			name:  "tabs become spaces",
			input: "echo\ta",
			want:  []editOp{{kind: opEcho, text: "echo a\r\n"}, {kind: opSubmit, text: "echo a"}},
		},
		{
			name:  "blank line prompts",
			input: "   ",
			want:  []editOp{{kind: opEcho, text: "   \r\n"}, {kind: opPrompt}},
		},
		{
			name:  "single character is a keystroke",
			input: "l",
			want:  []editOp{{kind: opEcho, text: "l"}},
		},
		{
			name:  "single multibyte rune is a keystroke",
			input: "é",
			want:  []editOp{{kind: opEcho, text: "é"}},
		},
		{
			name:  "control bytes mean keystrokes",
			input: "a\x07b",
			want:  []editOp{{kind: opEcho, text: "ab"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e lineEditor
			assert.Equal(t, tt.want, e.feed(tt.input))
		})
	}
}

func TestLineEditorPasteContinuesPendingLine(t *testing.T) {
	var e lineEditor

	assert.Equal(t, []editOp{{kind: opEcho, text: "l"}}, e.feed("l"))
	assert.Equal(t, []editOp{{kind: opEcho, text: "s -la"}}, e.feed("s -la"))
	assert.Equal(t, "ls -la", e.pending())

	assert.Equal(t, []editOp{{kind: opEcho, text: "\r\n"}, {kind: opSubmit, text: "ls -la"}}, e.feed("\r"))
}
