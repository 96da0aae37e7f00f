package moderation

import (
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// FallbackReason 本地檢查命中時回給用戶的原因
const FallbackReason = "Contains inappropriate content"

const (
	fallbackCategory = "sexual"
	fallbackScore    = 0.9
)

// DefaultTerms 本地檢查使用的禁用詞
var DefaultTerms = []string{"naked", "nude", "explicit", "xxx", "porn"}

// Fallback 是不做任何 I/O 的本地檢查，小寫化後做子字串比對
type Fallback struct {
	matcher *goahocorasick.Machine
}

func NewFallback(terms []string) (*Fallback, error) {
	normalized := lo.Uniq(lo.FilterMap(terms, func(term string, _ int) (string, bool) {
		term = strings.ToLower(strings.TrimSpace(term))
		return term, term != ""
	}))
	patterns := lo.Map(normalized, func(term string, _ int) []rune { return []rune(term) })
	if len(patterns) == 0 {
		return &Fallback{}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Fallback{matcher: m}, nil
}

// Check 對同樣的輸入永遠回傳同樣的結果
func (f *Fallback) Check(text string) Verdict {
	if f.matcher != nil && len(text) > 0 {
		lowered := []rune(strings.ToLower(text))
		if len(f.matcher.MultiPatternSearch(lowered, true)) > 0 {
			return Verdict{
				Flagged:        true,
				Categories:     map[string]bool{fallbackCategory: true},
				CategoryScores: map[string]float64{fallbackCategory: fallbackScore},
				Reason:         FallbackReason,
				Source:         SourceFallback,
			}
		}
	}

	return Verdict{
		Flagged:        false,
		Categories:     map[string]bool{},
		CategoryScores: map[string]float64{},
		Reason:         "",
		Source:         SourceFallback,
	}
}
