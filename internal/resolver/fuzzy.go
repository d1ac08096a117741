package resolver

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/applypilot/internal/answerbank"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func words(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		set[w] = struct{}{}
	}
	return set
}

// Overlap is |A∩B| / max(|A|,|B|) over the lowercase word sets of a and b.
func Overlap(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(max(len(wa), len(wb)))
}

// bestMatch returns the answered entry with the highest overlap strictly above threshold.
// Ties go to the entry stored first.
func bestMatch(question string, entries []answerbank.Entry, threshold float64) (answerbank.Entry, float64, bool) {
	var (
		best      answerbank.Entry
		bestScore float64
		found     bool
	)
	for _, e := range entries {
		if e.Answer == "" {
			continue
		}
		score := Overlap(question, e.Question)
		if score > threshold && score > bestScore {
			best, bestScore, found = e, score, true
		}
	}
	return best, bestScore, found
}
