// Package tasks defines the structure for events that are sent to Kafka.
package tasks

import "time"

// AnalysisEvent 是一次分析工作流到达终态时发布的事件。
// 事件只携带诊断摘要，不包含原始症状文本。
type AnalysisEvent struct {
	ClientID       string    `json:"client_id"`
	TaskID         string    `json:"task_id,omitempty"`
	ConsultationID string    `json:"consultation_id,omitempty"`
	Status         string    `json:"status"`
	Summary        string    `json:"summary,omitempty"`
	Specialist     string    `json:"specialist,omitempty"`
	TopCondition   string    `json:"top_condition,omitempty"`
	Error          string    `json:"error,omitempty"`
	Attempts       int       `json:"attempts"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Key 返回事件的分区键，同一客户端的事件落在同一分区，保持顺序。
func (e AnalysisEvent) Key() []byte {
	return []byte(e.ClientID)
}
