// Package tokenizer provides approximate token counting for budget decisions.
//
// The chat-completion API enforces a hard context-window ceiling measured in
// model tokens.  FeliChat never needs an exact count, only a consistent and
// monotonic estimate for deciding when conversation memory must be compacted;
// the reply reserve absorbs the estimation error.
package tokenizer

// Estimator estimates the number of model tokens a text will occupy.
// Implementations must be deterministic, side-effect free, and return
// counts that grow with text length.
type Estimator interface {
	Estimate(text string) int
}

// DefaultCharsPerToken is the ~4 characters/token heuristic that holds for
// typical English chat text. Not billing-accurate; good enough for
// threshold comparison.
const DefaultCharsPerToken = 4

// Heuristic estimates tokens using a characters-per-token ratio, rounding up
// so budget checks err on the safe side.
type Heuristic struct {
	// CharsPerToken overrides the ratio. Zero or negative uses
	// DefaultCharsPerToken.
	CharsPerToken int
}

func (h Heuristic) ratio() int {
	if h.CharsPerToken <= 0 {
		return DefaultCharsPerToken
	}
	return h.CharsPerToken
}

// Estimate returns the estimated token count for text. Empty text is zero
// tokens; everything else rounds up.
func (h Heuristic) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	r := h.ratio()
	return (len(text) + r - 1) / r
}

// Compile-time interface satisfaction check.
var _ Estimator = Heuristic{}
