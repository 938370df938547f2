package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Consultation 是一条历史问诊记录，客户端只读。
// 后端把诊断存成文本列：可能是纯文本，也可能是 JSON 编码的 Diagnosis。
type Consultation struct {
	ID        int        `json:"id"`
	UserID    int        `json:"user_id,omitempty"`
	Symptoms  string     `json:"symptoms"`
	Diagnosis string     `json:"diagnosis"`
	Parsed    *Diagnosis `json:"parsed_diagnosis,omitempty"`
	CreatedAt LocalTime  `json:"created_at"`
}

// UnmarshalJSON 同时接受字符串和对象形式的 diagnosis 字段。
func (c *Consultation) UnmarshalJSON(data []byte) error {
	type plain Consultation
	var aux struct {
		plain
		Diagnosis json.RawMessage `json:"diagnosis"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Consultation(aux.plain)
	c.Diagnosis = ""
	c.Parsed = nil

	raw := bytes.TrimSpace(aux.Diagnosis)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '{' {
		c.Diagnosis = string(raw)
		c.Parsed = decodeDiagnosis(raw)
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return err
	}
	c.Diagnosis = text
	if strings.HasPrefix(strings.TrimSpace(text), "{") {
		c.Parsed = decodeDiagnosis([]byte(text))
	}
	return nil
}

func decodeDiagnosis(raw []byte) *Diagnosis {
	var d Diagnosis
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil
	}
	return &d
}
