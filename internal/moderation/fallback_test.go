package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFallback_Check(t *testing.T) {
	req := require.New(t)
	fallback, err := NewFallback(DefaultTerms)
	req.NoError(err)

	tests := []struct {
		name    string
		input   string
		flagged bool
	}{
		{name: "Plain term", input: "send nude pics", flagged: true},
		{name: "Uppercase term", input: "NAKED truth", flagged: true},
		{name: "Mixed case inside word", input: "PornStar", flagged: true},
		{name: "Substring of longer word", input: "inexplicitly", flagged: true},
		{name: "Triple x", input: "hugs xXx", flagged: true},
		{name: "Clean sentence", input: "hello, how are you?", flagged: false},
		{name: "Spaced letters are not normalized", input: "n u d e", flagged: false},
		{name: "Empty string", input: "", flagged: false},
		{name: "Non latin text", input: "こんにちは 🎉", flagged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := fallback.Check(tt.input)
			require.Equal(t, tt.flagged, verdict.Flagged)
			require.Equal(t, SourceFallback, verdict.Source)
			if tt.flagged {
				require.Equal(t, FallbackReason, verdict.Reason)
				require.Equal(t, map[string]bool{"sexual": true}, verdict.Categories)
				require.Equal(t, map[string]float64{"sexual": 0.9}, verdict.CategoryScores)
				return
			}
			require.Empty(t, verdict.Reason)
			require.NotNil(t, verdict.Categories)
			require.Empty(t, verdict.Categories)
			require.NotNil(t, verdict.CategoryScores)
			require.Empty(t, verdict.CategoryScores)
		})
	}
}

func TestFallback_IsDeterministic(t *testing.T) {
	fallback, err := NewFallback(DefaultTerms)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.Equal(t, fallback.Check("Explicit"), fallback.Check("Explicit"))
	}
}

func TestFallback_CornerCases(t *testing.T) {
	req := require.New(t)

	// Given duplicates, blanks and mixed case in the term list
	fallback, err := NewFallback([]string{"Nude", "nude", " ", "", "xxx"})
	req.NoError(err)
	req.True(fallback.Check("NUDE").Flagged)

	// Given no terms at all, nothing is flagged
	empty, err := NewFallback(nil)
	req.NoError(err)
	req.False(empty.Check("nude").Flagged)
}
