// Package moderation 審核用戶輸入的文字。
//
// Gateway 先呼叫遠端審核服務，任何失敗都會改用本地的 Fallback 檢查，
// 所以呼叫端一定會拿到 Verdict。
package moderation

import "strings"

// Source 表示 Verdict 由哪個分支產生
type Source string

const (
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

// Verdict 是一次審核的結果，不會被儲存
type Verdict struct {
	Flagged        bool
	Categories     map[string]bool
	CategoryScores map[string]float64
	Reason         string
	Source         Source
}

const reasonPrefix = "Content flagged for: "

// flaggedReason 依服務回傳的順序串接為 true 的類別名稱
func flaggedReason(names []string, categories map[string]bool) string {
	var flagged []string
	for _, name := range names {
		if categories[name] {
			flagged = append(flagged, name)
		}
	}
	if len(flagged) == 0 {
		return ""
	}
	return reasonPrefix + strings.Join(flagged, ", ")
}
