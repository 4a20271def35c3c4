package csvjson

import "strings"

// Strategy selects the tokenizer used for a conversion.
type Strategy uint8

const (
	// StrategySimple splits on the delimiter with no quote or escape handling.
	StrategySimple Strategy = iota
	// StrategyQuoteAware runs the quote/escape state machine.
	StrategyQuoteAware
)

func (s Strategy) String() string {
	if s == StrategySimple {
		return "simple"
	}
	return "quote-aware"
}

// Analyze returns StrategySimple when sample holds neither '"' nor '\',
// and StrategyQuoteAware otherwise.
func Analyze(sample string) Strategy {
	if strings.ContainsAny(sample, `"\`) {
		return StrategyQuoteAware
	}
	return StrategySimple
}

// SplitSimple splits one physical line on comma. It is only valid for lines
// that Analyze classifies as StrategySimple.
func SplitSimple(line string, comma byte) []string {
	return strings.Split(line, string(comma))
}
