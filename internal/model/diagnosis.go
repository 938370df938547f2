// Package model 包含了网关与后端交换的数据模型定义。
package model

import "encoding/json"

// Condition 是诊断结果中的一个候选疾病。
// Confidence 取值 0–100，由后端保证，不做截断。
type Condition struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Severity   string  `json:"severity,omitempty"`
}

// Diagnosis 是后端生成的诊断结果，收到后即视为不可变。
type Diagnosis struct {
	Summary               string      `json:"diagnosis_summary"`
	Conditions            []Condition `json:"conditions"`
	RecommendedSpecialist string      `json:"recommended_specialist"`
	Precautions           []string    `json:"precautions,omitempty"`
	LifestyleTips         []string    `json:"lifestyle_tips,omitempty"`
	Prevention            []string    `json:"prevention,omitempty"`
	Tips                  []string    `json:"tips,omitempty"`
	RecommendedTests      []string    `json:"recommended_tests,omitempty"`
}

// UnmarshalJSON 兼容旧版字段名 diagnosis / consult_doctor。
func (d *Diagnosis) UnmarshalJSON(data []byte) error {
	type plain Diagnosis
	var aux struct {
		plain
		LegacyDiagnosis string `json:"diagnosis"`
		ConsultDoctor   string `json:"consult_doctor"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Diagnosis(aux.plain)
	if d.Summary == "" {
		d.Summary = aux.LegacyDiagnosis
	}
	if d.RecommendedSpecialist == "" {
		d.RecommendedSpecialist = aux.ConsultDoctor
	}
	return nil
}
