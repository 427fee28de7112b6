// Package schedule はカタログ・台帳データの純粋な射影を提供する。
// 永続化される状態は持たず、読み出しのたびに再計算される。
package schedule

import (
	"strings"
	"time"

	"github.com/hitoshi/drivebook/internal/model"
)

// FilterSessions はセッション一覧を大文字小文字を区別しない部分一致で絞り込む。
// シナリオ名・トピック・場所・メモの各フィールドを対象とする。
// クエリが空の場合は全件を返す。
func FilterSessions(sessions []model.Session, query string) []model.Session {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return sessions
	}

	matched := make([]model.Session, 0, len(sessions))
	for _, session := range sessions {
		if sessionMatches(&session, query) {
			matched = append(matched, session)
		}
	}
	return matched
}

func sessionMatches(session *model.Session, query string) bool {
	fields := []string{session.Topic, session.Location, session.Notes}
	if session.Scenario != nil {
		fields = append(fields, session.Scenario.Name)
	}

	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// Partition は予約一覧をセッション日時と現在時刻の比較で
// これから受講する予約と過去の予約に分割する。
// セッション情報が未補完（ハイドレーション失敗）の予約は
// 日時を判定できないためupcoming側に残す。
func Partition(regs []model.Registration, now time.Time) (upcoming, past []model.Registration) {
	upcoming = make([]model.Registration, 0, len(regs))
	past = make([]model.Registration, 0)

	for _, reg := range regs {
		if reg.Session != nil && reg.Session.Datetime.Before(now) {
			past = append(past, reg)
			continue
		}
		upcoming = append(upcoming, reg)
	}
	return upcoming, past
}
