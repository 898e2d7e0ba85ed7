// Package multiplier turns noisy OCR text into an ordered sequence of
// multiplier values ready for the predictor.
package multiplier

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Marker is the suffix that identifies a token as a multiplier candidate.
const Marker = "x"

// separatorReplacer maps separators OCR commonly confuses with the decimal
// point onto '.'.
var separatorReplacer = strings.NewReplacer(":", ".", ";", ".", ",", ".")

// Tokenize NFKC-normalizes text and splits it on whitespace. Full-width
// digits and punctuation produced by some OCR engines fold to ASCII here.
func Tokenize(text string) []string {
	return strings.Fields(norm.NFKC.String(text))
}

// CorrectToken normalizes separators and repairs a dropped decimal point.
// A token carrying the marker with no '.' and more than three characters
// gets a '.' inserted three characters from the end: "1234x" -> "1.234x".
func CorrectToken(tok string) string {
	tok = separatorReplacer.Replace(tok)
	if !strings.Contains(tok, Marker) || strings.Contains(tok, ".") {
		return tok
	}
	r := []rune(tok)
	if len(r) <= 3 {
		return tok
	}
	cut := len(r) - 3
	return string(r[:cut]) + "." + string(r[cut:])
}

// CorrectTokens applies CorrectToken to every token. The output has the same
// length and order as the input.
func CorrectTokens(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = CorrectToken(tok)
	}
	return out
}
