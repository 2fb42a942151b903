package session

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	keyInterrupt = 0x03
	keyBackspace = 0x08
	keyEscape    = 0x1b
	keyDelete    = 0x7f

	eraseSequence = "\b \b"
	interruptEcho = "^C\r\n"
)

type editOpKind int

const (
	opEcho editOpKind = iota
	opPrompt
	opSubmit
	opInterrupt
)

type editOp struct {
	kind editOpKind
	text string
}

type escapeState int

const (
	escNone escapeState = iota
	escStart
	escSequence
)

// lineEditor is the input discipline for both modes. Neither mode has a
// terminal in front of the shell, so nothing else echoes input. It turns raw
// client input into echo, prompt, and submit operations.
type lineEditor struct {
	buf    []rune
	esc    escapeState
	lastCR bool
}

// feed consumes raw input and returns the resulting operations in order.
// Adjacent echoes are merged. A printable payload of more than one rune that
// arrives on an empty line is a whole command line and is submitted at once;
// anything else is treated as keystrokes.
func (e *lineEditor) feed(data string) []editOp {
	var ops []editOp

	if e.esc == escNone && len(e.buf) == 0 && wholeLine(data) {
		e.lastCR = false
		line := strings.ReplaceAll(data, "\t", " ")
		return submitLine(appendEcho(ops, line), line)
	}

	for _, r := range data {
		// CR LF counts as one line terminator
		if r == '\n' && e.lastCR {
			e.lastCR = false
			continue
		}
		e.lastCR = r == '\r'

		if e.esc != escNone {
			e.consumeEscape(r)
			continue
		}

		switch {
		case r == '\r' || r == '\n':
			line := string(e.buf)
			e.buf = e.buf[:0]
			ops = submitLine(ops, line)
		case r == keyBackspace || r == keyDelete:
			if len(e.buf) > 0 {
				e.buf = e.buf[:len(e.buf)-1]
				ops = appendEcho(ops, eraseSequence)
			}
		case r == keyInterrupt:
			e.buf = e.buf[:0]
			ops = appendEcho(ops, interruptEcho)
			ops = append(ops, editOp{kind: opInterrupt})
		case r == keyEscape:
			e.esc = escStart
		case r == '\t':
			e.buf = append(e.buf, ' ')
			ops = appendEcho(ops, " ")
		case unicode.IsPrint(r):
			e.buf = append(e.buf, r)
			ops = appendEcho(ops, string(r))
		}
	}

	return ops
}

// consumeEscape swallows cursor keys and other CSI/SS3 sequences
func (e *lineEditor) consumeEscape(r rune) {
	switch e.esc {
	case escStart:
		if r == '[' || r == 'O' {
			e.esc = escSequence
			return
		}
		e.esc = escNone
	case escSequence:
		if r >= 0x40 && r <= 0x7e {
			e.esc = escNone
		}
	}
}

// pending returns the unsubmitted buffer
func (e *lineEditor) pending() string {
	return string(e.buf)
}

func (e *lineEditor) reset() {
	e.buf = e.buf[:0]
	e.esc = escNone
	e.lastCR = false
}

func appendEcho(ops []editOp, text string) []editOp {
	if n := len(ops); n > 0 && ops[n-1].kind == opEcho {
		ops[n-1].text += text
		return ops
	}
	return append(ops, editOp{kind: opEcho, text: text})
}

// submitLine ends the current line: blank lines re-prompt, others submit
func submitLine(ops []editOp, line string) []editOp {
	ops = appendEcho(ops, "\r\n")
	if strings.TrimSpace(line) == "" {
		return append(ops, editOp{kind: opPrompt})
	}
	return append(ops, editOp{kind: opSubmit, text: line})
}

// wholeLine reports whether a payload is a complete command line rather than
// a keystroke: more than one rune and nothing but printable text
func wholeLine(data string) bool {
	if utf8.RuneCountInString(data) < 2 {
		return false
	}
	for _, r := range data {
		if r != '\t' && !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
