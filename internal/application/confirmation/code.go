package confirmation

import "strings"

// CodeLength is the number of digits in a confirmation code.
const CodeLength = 8

// CodeEntry models the 8-field code input: per-digit entry with
// auto-advance, backspace retreat into the previous field, bulk paste, and
// auto-submit the instant the last digit lands. OnComplete fires at most
// once per fill; Clear re-arms it.
type CodeEntry struct {
	digits    [CodeLength]byte
	focus     int
	submitted bool

	OnComplete func(code string)
}

func NewCodeEntry(onComplete func(code string)) *CodeEntry {
	return &CodeEntry{OnComplete: onComplete}
}

// Enter types one character into the focused field. Non-digits are ignored.
// Returns true when the character was accepted.
func (e *CodeEntry) Enter(ch byte) bool {
	if ch < '0' || ch > '9' {
		return false
	}
	e.digits[e.focus] = ch
	if e.focus < CodeLength-1 {
		e.focus++
	}
	e.maybeSubmit()
	return true
}

// Backspace clears the focused field, or retreats into the previous field
// and clears it when the focused one is already empty.
func (e *CodeEntry) Backspace() {
	if e.digits[e.focus] == 0 && e.focus > 0 {
		e.focus--
	}
	e.digits[e.focus] = 0
}

// Paste fills every field from an exact 8-digit string and submits.
// Anything else is rejected.
func (e *CodeEntry) Paste(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < CodeLength; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	for i := 0; i < CodeLength; i++ {
		e.digits[i] = s[i]
	}
	e.focus = CodeLength - 1
	e.maybeSubmit()
	return true
}

// Clear resets all fields and refocuses the first one; used after a
// rejected code so the user can retry.
func (e *CodeEntry) Clear() {
	e.digits = [CodeLength]byte{}
	e.focus = 0
	e.submitted = false
}

// Complete reports whether all fields are filled.
func (e *CodeEntry) Complete() bool {
	for _, d := range e.digits {
		if d == 0 {
			return false
		}
	}
	return true
}

// Code returns the concatenated digits entered so far.
func (e *CodeEntry) Code() string {
	var b strings.Builder
	for _, d := range e.digits {
		if d != 0 {
			b.WriteByte(d)
		}
	}
	return b.String()
}

// Focus returns the index of the focused field.
func (e *CodeEntry) Focus() int {
	return e.focus
}

func (e *CodeEntry) maybeSubmit() {
	if e.submitted || !e.Complete() {
		return
	}
	e.submitted = true
	if e.OnComplete != nil {
		e.OnComplete(e.Code())
	}
}
