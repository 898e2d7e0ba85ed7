package multiplier

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/multiplier-cli/internal/model"
)

// ErrNoMultipliers is returned when text yields no parseable multiplier.
var ErrNoMultipliers = eris.New("multiplier: no multipliers found")

// Extraction is the outcome of scanning corrected tokens.
type Extraction struct {
	// Values holds parsed multipliers in the order they should be modeled.
	Values []float64 `json:"values"`
	// Discarded counts marker tokens that failed to parse.
	Discarded int `json:"discarded"`
}

// Extract parses every token containing the marker. Tokens that fail to
// parse are dropped and counted; tokens without the marker are ignored.
// Values keep first-seen order.
func Extract(tokens []string) Extraction {
	var ex Extraction
	for _, tok := range tokens {
		if !strings.Contains(tok, Marker) {
			continue
		}
		raw := strings.ReplaceAll(strings.ReplaceAll(tok, Marker, ""), ",", ".")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			ex.Discarded++
			continue
		}
		ex.Values = append(ex.Values, v)
	}
	return ex
}

// Order arranges extracted values oldest-to-newest for the given source.
// Captured text is reversed; user-edited text is left as typed. The input is
// never modified.
func Order(values []float64, src model.SourceOrder) []float64 {
	out := slices.Clone(values)
	if src == model.SourceCapturedTopDown {
		slices.Reverse(out)
	}
	return out
}

// Parse runs tokenization, correction, extraction and ordering over text.
// It returns ErrNoMultipliers (with the discard count still populated) when
// nothing parsed.
func Parse(text string, src model.SourceOrder) (Extraction, error) {
	ex := Extract(CorrectTokens(Tokenize(text)))
	if len(ex.Values) == 0 {
		return ex, ErrNoMultipliers
	}
	ex.Values = Order(ex.Values, src)
	return ex, nil
}
