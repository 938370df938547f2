package model

import (
	"strconv"
	"strings"
)

// DefaultSpecialist 在后端未给出专科建议时使用。
const DefaultSpecialist = "General Physician"

// ConditionView 是一行候选疾病的展示数据。
type ConditionView struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
	BarWidth   string  `json:"bar_width"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Severity   string  `json:"severity,omitempty"`
}

// DiagnosisView 是诊断结果的纯展示投影。
type DiagnosisView struct {
	Summary          string          `json:"summary"`
	Conditions       []ConditionView `json:"conditions"`
	Specialist       string          `json:"specialist"`
	Precautions      []string        `json:"precautions,omitempty"`
	LifestyleTips    []string        `json:"lifestyle_tips,omitempty"`
	Prevention       []string        `json:"prevention,omitempty"`
	Tips             []string        `json:"tips,omitempty"`
	RecommendedTests []string        `json:"recommended_tests,omitempty"`
}

// RenderDiagnosis 把诊断结果投影为展示数据。
// 条件保持后端给出的顺序；置信度超出 0–100 时原样展示；空列表对应的区块省略。
func RenderDiagnosis(d Diagnosis) DiagnosisView {
	v := DiagnosisView{
		Summary:          d.Summary,
		Conditions:       make([]ConditionView, 0, len(d.Conditions)),
		Specialist:       d.RecommendedSpecialist,
		Precautions:      nonEmpty(d.Precautions),
		LifestyleTips:    nonEmpty(d.LifestyleTips),
		Prevention:       nonEmpty(d.Prevention),
		Tips:             nonEmpty(d.Tips),
		RecommendedTests: nonEmpty(d.RecommendedTests),
	}
	if strings.TrimSpace(v.Specialist) == "" {
		v.Specialist = DefaultSpecialist
	}
	for _, c := range d.Conditions {
		pct := FormatPercent(c.Confidence)
		v.Conditions = append(v.Conditions, ConditionView{
			Name:       c.Name,
			Confidence: c.Confidence,
			Label:      pct,
			BarWidth:   pct,
			Reasoning:  c.Reasoning,
			Severity:   c.Severity,
		})
	}
	return v
}

// FormatPercent 把 72 格式化为 "72%"，72.5 格式化为 "72.5%"。
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

func nonEmpty(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	return items
}
