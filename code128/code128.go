// Package code128 encodes strings as Code 128 symbols for barcode fonts and
// renderers.
//
// Only Code Set B (printable ASCII) and Code Set C (digit pairs) are used.
// The choice between them is made once, from the first four characters of
// the input: a leading run of four digits starts the symbol in Code Set C,
// and the encoder drops back to Code Set B (code 100) as soon as two digits
// are no longer available. It never switches from B back into C.
package code128

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// CodeShiftB switches from Code Set C to Code Set B.
	CodeShiftB = 100

	// CodeStartB starts a symbol in Code Set B.
	CodeStartB = 104

	// CodeStartC starts a symbol in Code Set C.
	CodeStartC = 105

	// CodeStop terminates every symbol.
	CodeStop = 106

	checksumModulus = 103
	firstPrintable  = 32
	lastPrintable   = 126
	lookaheadDigits = 4
)

// Alphabet maps every symbol code (0-106) to the glyph used by Code 128
// barcode fonts. Code 0 (space) is drawn as 'Â' and codes 95-106 use the
// Latin-1 range starting at 'Ã'.
const Alphabet = "Â!\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~ÃÄÅÆÇÈÉÊËÌÍÎ"

var (
	// ErrEmptyInput is returned when asked to encode an empty string.
	ErrEmptyInput = errors.New("code128: empty input")

	// ErrInvalidCode is returned when a symbol code is outside 0-106.
	ErrInvalidCode = errors.New("code128: invalid symbol code")

	alphabet    = []rune(Alphabet)
	glyphToCode = make(map[rune]int, len(alphabet))
)

func init() {
	for code, glyph := range alphabet {
		glyphToCode[glyph] = code
	}
}

// InvalidCharacterError reports a character that Code Set B cannot
// represent.
type InvalidCharacterError struct {
	Char     rune
	Position int // byte offset in the input
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf(
		"code128: invalid character %q (U+%04X) at position %d",
		e.Char, e.Char, e.Position,
	)
}

// Encode returns the barcode font string for input: start glyph, payload
// glyphs, checksum glyph and stop glyph.
func Encode(input string) (string, error) {
	codes, err := Codes(input)
	if err != nil {
		return "", err
	}
	return Symbol(codes)
}

// Codes returns the full symbol stream for input, including the start code,
// checksum and stop code.
func Codes(input string) ([]int, error) {
	if input == "" {
		return nil, ErrEmptyInput
	}
	for pos, r := range input {
		if r < firstPrintable || r > lastPrintable {
			return nil, &InvalidCharacterError{Char: r, Position: pos}
		}
	}

	// input is plain ASCII from here on, so bytes and characters line up
	codes := make([]int, 0, len(input)+3)
	tableB := !allDigits(input, 0, lookaheadDigits)
	if tableB {
		codes = append(codes, CodeStartB)
	} else {
		codes = append(codes, CodeStartC)
	}

	for pos := 0; pos < len(input); {
		if !tableB {
			if allDigits(input, pos, 2) {
				codes = append(codes, int(input[pos]-'0')*10+int(input[pos+1]-'0'))
				pos += 2
				continue
			}
			codes = append(codes, CodeShiftB)
			tableB = true
		}
		codes = append(codes, int(input[pos])-firstPrintable)
		pos++
	}

	codes = append(codes, Checksum(codes), CodeStop)
	return codes, nil
}

// Checksum computes the weighted modulo-103 check value over codes, which
// must begin with the start code and exclude the checksum and stop codes.
func Checksum(codes []int) int {
	if len(codes) == 0 {
		return 0
	}
	sum := codes[0]
	for i := 1; i < len(codes); i++ {
		sum += i * codes[i]
	}
	return sum % checksumModulus
}

// Symbol maps codes to their glyphs.
func Symbol(codes []int) (string, error) {
	buf := make([]byte, 0, len(codes)*2)
	for _, code := range codes {
		if code < 0 || code > CodeStop {
			return "", fmt.Errorf("%w: %d", ErrInvalidCode, code)
		}
		buf = utf8.AppendRune(buf, alphabet[code])
	}
	return string(buf), nil
}

// ParseSymbol maps glyphs back to their codes.
func ParseSymbol(symbol string) ([]int, error) {
	codes := make([]int, 0, utf8.RuneCountInString(symbol))
	for pos, glyph := range symbol {
		code, ok := glyphToCode[glyph]
		if !ok {
			return nil, &InvalidCharacterError{Char: glyph, Position: pos}
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// allDigits reports whether s has n ASCII digits starting at offset.
func allDigits(s string, offset int, n int) bool {
	if offset+n > len(s) {
		return false
	}
	for i := offset; i < offset+n; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
