package resolver

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/applypilot/internal/form"
)

var (
	experienceTopic = []string{"experience", "pengalaman"}
	experienceUnit  = []string{"year", "tahun"}
)

// lessThanOne matches "less than 1 year", "<1 tahun", "kurang dari satu tahun" and "under one year".
var lessThanOne = regexp.MustCompile(`(?:less than|kurang dari|under|<)\s*(?:1|one|satu)\b`)

// exactlyOne finds a standalone "1 year" or "satu tahun"; the text around it is checked by
// oneLowerBound and oneUpperBound.
var exactlyOne = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])((?:1|one|satu)\s*(?:years?|tahun))\b`)

// Qualifiers that turn "1 year" into a bound rather than an amount.
var (
	oneLowerBound = regexp.MustCompile(`(?:[<>+≤≥~-]|\b(?:than|dari|lebih|more|over|under|kurang|at least|minimal|min|up to|sampai))\s*$`)
	oneUpperBound = regexp.MustCompile(`^\s*(?:\+|or more|atau lebih|ke atas|plus)`)
)

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// isOneYear reports whether option states exactly one year, rejecting "11 years",
// "lebih dari 1 tahun" and "1+ year".
func isOneYear(option string) bool {
	o := strings.ToLower(option)
	if lessThanOne.MatchString(o) {
		return false
	}
	for _, m := range exactlyOne.FindAllStringSubmatchIndex(o, -1) {
		start, end := m[2], m[3]
		if oneLowerBound.MatchString(o[:start]) || oneUpperBound.MatchString(o[end:]) {
			continue
		}
		return true
	}
	return false
}

// isExperienceQuestion recognizes "how many years of experience" questions with fixed options.
func isExperienceQuestion(d form.Descriptor) bool {
	if !d.Type.HasOptions() || len(d.Options) == 0 {
		return false
	}
	q := strings.ToLower(d.Text)
	return containsAny(q, experienceTopic) && containsAny(q, experienceUnit)
}

// experienceAnswer picks the "less than one year" option with probability p, otherwise the
// "one year" option. When the chosen kind is missing the other is used.
func experienceAnswer(d form.Descriptor, p float64, rng Rand) (string, bool) {
	if !isExperienceQuestion(d) {
		return "", false
	}

	lessIdx, oneIdx := -1, -1
	for i, opt := range d.Options {
		if lessIdx < 0 && lessThanOne.MatchString(strings.ToLower(opt)) {
			lessIdx = i
		}
		if oneIdx < 0 && isOneYear(opt) {
			oneIdx = i
		}
	}

	preferred, fallback := oneIdx, lessIdx
	if rng.Float64() < p {
		preferred, fallback = lessIdx, oneIdx
	}
	switch {
	case preferred >= 0:
		return d.Options[preferred], true
	case fallback >= 0:
		return d.Options[fallback], true
	}
	return "", false
}
