// Package model はドメインモデルを定義する。
package model

import "time"

// Scenario は教習シナリオ（市街地走行、高速道路など）を表す。
type Scenario struct {
	ScenarioID      int    `json:"scenarioID"`
	Name            string `json:"name"`
	EnvironmentType string `json:"environmentType"`
	Difficulty      string `json:"difficulty"` // EASY / MEDIUM / HARD
}

// Session は予約可能な教習枠を表す。
// バックエンドのみが作成・更新し、クライアントからは読み取り専用。
// IDが同一性を決める。
type Session struct {
	ID              string    `json:"id"`
	Datetime        time.Time `json:"datetime"`
	DurationMinutes int       `json:"duration_minutes"`
	MaxCapacity     int       `json:"max_capacity"`
	Price           float64   `json:"price"`
	InstructorID    string    `json:"instructor_id"`
	Scenario        *Scenario `json:"scenario,omitempty"`
	Location        string    `json:"location,omitempty"`
	Topic           string    `json:"topic,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Status          string    `json:"status,omitempty"`
}

// SessionStatus の既知の値。バックエンドが未知の値を返しても
// クライアントはそのまま保持する。
const (
	SessionStatusScheduled = "scheduled"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)
