package model

import (
	"errors"
	"strings"
	"time"
)

// Medicine 是一条服药提醒，由后端创建和删除。
type Medicine struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	ReminderTime string `json:"reminder_time"`
	IsActive     int    `json:"is_active"`
}

// MedicineInput 是新增提醒的请求体。
type MedicineInput struct {
	Name         string `json:"name" binding:"required"`
	Dosage       string `json:"dosage" binding:"required"`
	Frequency    string `json:"frequency"`
	ReminderTime string `json:"reminder_time" binding:"required"`
}

// Validate 检查必填字段和 HH:MM 格式的提醒时间，Frequency 为空时默认 Daily。
func (m *MedicineInput) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Dosage = strings.TrimSpace(m.Dosage)
	if m.Name == "" || m.Dosage == "" {
		return errors.New("name and dosage are required")
	}
	if m.Frequency == "" {
		m.Frequency = "Daily"
	}
	if _, err := time.Parse("15:04", m.ReminderTime); err != nil {
		return errors.New("reminder_time must be HH:MM")
	}
	return nil
}
