package cue

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue/errors"
)

// ValidationError is a configuration error with its source position when
// known.
type ValidationError struct {
	Path     string
	Message  string
	Filename string
	Line     int
	Column   int
	// Context is a numbered source snippet around Line.
	Context string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	switch {
	case e.Filename != "" && e.Line > 0:
		return e.Filename + ":" + strconv.Itoa(e.Line) + ": " + msg
	case e.Filename != "":
		return e.Filename + ": " + msg
	default:
		return msg
	}
}

// FormatError converts the first CUE error in err into a *ValidationError
// carrying its position. A wrapped *ValidationError is returned unwrapped;
// other errors are returned as is.
func FormatError(err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve
	}
	var cueErr errors.Error
	if !stderrors.As(err, &cueErr) {
		return err
	}
	cueErrs := errors.Errors(err)
	if len(cueErrs) == 0 {
		return err
	}

	first := cueErrs[0]
	// Msg gives the message without the position prefix Error adds.
	format, args := first.Msg()
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	if message == "" {
		message = first.Error()
	}

	ve = &ValidationError{Message: message}
	if path := first.Path(); len(path) > 0 {
		ve.Path = strings.Join(path, ".")
	}
	if pos := first.Position(); pos.IsValid() {
		ve.Filename = pos.Filename()
		ve.Line = pos.Line()
		ve.Column = pos.Column()
	}
	return ve
}

// ErrorSummary returns the first error and a count of the rest.
func ErrorSummary(err error) string {
	if err == nil {
		return ""
	}
	cueErrs := errors.Errors(err)
	switch len(cueErrs) {
	case 0:
		return err.Error()
	case 1:
		return FormatError(cueErrs[0]).Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", FormatError(cueErrs[0]), len(cueErrs)-1)
	}
}

// FormatErrorWithContext is FormatError plus a source snippet around the
// error line.
func FormatErrorWithContext(err error) *ValidationError {
	if err == nil {
		return nil
	}
	ve, ok := FormatError(err).(*ValidationError)
	if !ok {
		return &ValidationError{Message: err.Error()}
	}
	if ve.Filename != "" && ve.Line > 0 {
		ve.Context = sourceContext(ve.Filename, ve.Line, ve.Column)
	}
	return ve
}

// sourceContext renders two lines either side of line, numbered, with a
// caret under column.
func sourceContext(filename string, line, column int) string {
	f, err := os.Open(filename)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	const around = 2
	first := max(line-around, 1)
	last := line + around
	width := len(strconv.Itoa(last))

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan() && n <= last; n++ {
		if n < first {
			continue
		}
		fmt.Fprintf(&sb, "    %*d | %s\n", width, n, scanner.Text())
		if n == line && column > 0 {
			sb.WriteString(strings.Repeat(" ", 4+width+3+column-1) + "^\n")
		}
	}
	return sb.String()
}
