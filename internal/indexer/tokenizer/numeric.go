package tokenizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NoTokensText is the token text emitted for values that fail conversion.
const NoTokensText = "__"

// EncodeInt renders v so that lexical order equals numeric order.
func EncodeInt(v int64) string {
	return fmt.Sprintf("%016x", uint64(v)^(1<<63))
}

// EncodeFloat renders v so that lexical order equals numeric order.
func EncodeFloat(v float64) string {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return fmt.Sprintf("%016x", bits)
}

// integerAnalyzer and floatAnalyzer emit one sortable term or a
// TypeNoTokens token.
type integerAnalyzer struct{}

func (integerAnalyzer) Analyze(text string) TokenStream {
	v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return Stream([]Token{{Text: NoTokensText, End: len(text), PositionIncrement: 1, Type: TypeNoTokens}})
	}
	return Stream([]Token{{Text: EncodeInt(v), End: len(text), PositionIncrement: 1, Type: TypeNumeric}})
}

type floatAnalyzer struct{}

func (floatAnalyzer) Analyze(text string) TokenStream {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) {
		return Stream([]Token{{Text: NoTokensText, End: len(text), PositionIncrement: 1, Type: TypeNoTokens}})
	}
	return Stream([]Token{{Text: EncodeFloat(v), End: len(text), PositionIncrement: 1, Type: TypeNumeric}})
}
