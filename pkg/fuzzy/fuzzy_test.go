package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("Thanks", "thanks"))
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 5, LevenshteinDistance("", "hello"))
	assert.Equal(t, 0, LevenshteinDistance("José", "jose"))
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		text, phrase string
		want         bool
	}{
		{"thanks, that's all", "that's all", true},
		{"Thanks, THATS ALL from me!", "that's all", true},
		{"ok thts all for now", "that's all", false},
		{"I want to know all about hackathons", "that's all", false},
		{"What's all involved in joining the club", "that's all", false},
		{"Is that all the workshops you run", "that's all", false},
		{"nothing else to add, cheers", "nothing else", true},
		{"cheers, nothng else from me", "nothing else", true},
		{"no more questons", "no more questions", true},
		{"Goodbye and see you!", "goodbye", true},
		{"ok goodbyee", "goodbye", true},
		{"good", "goodbye", false},
		{"anything", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsPhrase(tt.text, tt.phrase))
		})
	}
}

func TestScoreApplicant(t *testing.T) {
	exact := ScoreApplicant("jane", "Jane Doe", "jane.doe@uni.edu", "Computer Science")
	typo := ScoreApplicant("jnae", "Jane Doe", "jane.doe@uni.edu", "Computer Science")
	major := ScoreApplicant("computer", "Bob", "bob@uni.edu", "Computer Science")
	none := ScoreApplicant("chemistry", "Bob", "bob@uni.edu", "Computer Science")

	assert.Greater(t, exact, typo)
	assert.Greater(t, typo, 0.0)
	assert.Greater(t, major, 0.0)
	assert.Zero(t, none)
	assert.Zero(t, ScoreApplicant("  ", "Jane", "jane@uni.edu", ""))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "thats all", Normalize("  That's   ALL!! "))
	assert.Equal(t, "cafe", Normalize("Café"))
}
