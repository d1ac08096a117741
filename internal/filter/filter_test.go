package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/applypilot/internal/config"
)

func TestExclusion_Defaults(t *testing.T) {
	ex, err := New(config.DefaultExclusions)
	require.NoError(t, err)
	require.Equal(t, len(config.DefaultExclusions), ex.Len())

	tests := []struct {
		name        string
		title       string
		description string
		allowed     bool
		pattern     string
	}{
		{name: "plain teaching role", title: "Guru Matematika SMP", allowed: true},
		{name: "language in title", title: "Mandarin Teacher", pattern: "mandarin"},
		{name: "phrase in description", title: "Staff", description: "Melapor kepada Kepala Sekolah", pattern: "kepala sekolah"},
		{name: "art as a word", title: "Part-time Art Teacher", pattern: `\bart\b`},
		{name: "art inside a word", title: "Particle Physics Tutor", description: "smart students", allowed: true},
		{name: "seni as a word only", title: "Guru Seni Budaya", pattern: "seni"},
		{name: "seni inside senior", title: "Senior Teacher", allowed: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pattern, matched := ex.Match(tc.title, tc.description)
			assert.Equal(t, !tc.allowed, matched)
			assert.Equal(t, tc.pattern, pattern)
			assert.Equal(t, tc.allowed, ex.Allows(tc.title, tc.description))
		})
	}
}

func TestExclusion_QuotesLiterals(t *testing.T) {
	ex, err := New([]string{"c++", "  ", "Night Shift"})
	require.NoError(t, err)
	assert.Equal(t, 2, ex.Len())
	assert.False(t, ex.Allows("Night shift guard", ""))
	assert.True(t, ex.Allows("c developer", ""))
}

func TestExclusion_InvalidRegex(t *testing.T) {
	_, err := New([]string{`\b(unclosed`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exclusion pattern")
}

func TestExclusion_NilAllowsEverything(t *testing.T) {
	var ex *Exclusion
	assert.True(t, ex.Allows("anything", "at all"))
}
