package phases

import "github.com/artpar/rollout/internal/core/domain"

// MaxPatternHistory is the number of recent patterns kept per user.
const MaxPatternHistory = 5

// RecordPattern adds p to the recently used patterns.
//
// A pattern already in history leaves it untouched, keeping the position of
// its first use. Otherwise p is appended and the oldest entries are dropped
// to stay within MaxPatternHistory. Empty patterns are not recorded.
// The input slice is never modified.
func RecordPattern(history []domain.Pattern, p domain.Pattern) []domain.Pattern {
	out := make([]domain.Pattern, 0, len(history)+1)
	out = append(out, history...)
	if len(p) == 0 {
		return out
	}
	for _, existing := range history {
		if SamePattern(existing, p) {
			return out
		}
	}
	out = append(out, append(domain.Pattern(nil), p...))
	if len(out) > MaxPatternHistory {
		out = out[len(out)-MaxPatternHistory:]
	}
	return out
}
