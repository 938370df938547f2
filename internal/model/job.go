package model

import (
	"bytes"
	"encoding/json"
)

// TaskStatus 是后端报告的分析任务状态。
type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskSuccess TaskStatus = "SUCCESS"
	TaskFailure TaskStatus = "FAILURE"
)

// IsTerminal 报告状态是否为终态。PENDING 之外的非终态
// （Processing、STARTED、RETRY、ERROR 等）一律按 PENDING 处理。
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// ConsultationID 兼容后端返回的数字或字符串 consultation_id。
type ConsultationID string

// UnmarshalJSON 接受 JSON 数字、字符串或 null。
func (c *ConsultationID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ConsultationID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = ConsultationID(n.String())
	return nil
}

// AnalysisJob 是提交接口和轮询接口共用的响应结构。
type AnalysisJob struct {
	TaskID         string          `json:"task_id,omitempty"`
	Status         TaskStatus      `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Message        string          `json:"message,omitempty"`
	ConsultationID ConsultationID  `json:"consultation_id,omitempty"`
}

// Diagnosis 解析 result 字段。后端在没有结果时可能返回字符串
// （例如 "No result returned"）或 null，这些情况 ok 为 false。
func (j *AnalysisJob) Diagnosis() (*Diagnosis, bool) {
	raw := bytes.TrimSpace(j.Result)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var d Diagnosis
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, false
	}
	return &d, true
}
