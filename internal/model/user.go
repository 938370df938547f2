package model

import (
	"math"
	"strconv"
	"strings"
)

// Credentials 是登录表单，Username 即邮箱。
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Role 区分注册的用户类型。
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// SignupRequest 对应后端 /signup 的 JSON 请求体。
// 患者填写 Age，医生填写 HospitalName 与 Certifications。
type SignupRequest struct {
	Email          string  `json:"email" binding:"required"`
	Password       string  `json:"password" binding:"required"`
	FullName       *string `json:"full_name"`
	Role           string  `json:"role"`
	Age            *int    `json:"age,omitempty"`
	HospitalName   string  `json:"hospital_name,omitempty"`
	Certifications string  `json:"certifications,omitempty"`
}

// Normalize 按角色整理字段：未知角色按患者处理，患者不携带医院信息，医生不携带年龄。
func (r *SignupRequest) Normalize() {
	if r.Role != RoleDoctor {
		r.Role = RolePatient
	}
	if r.FullName != nil && *r.FullName == "" {
		r.FullName = nil
	}
	if r.Role == RolePatient {
		r.HospitalName = ""
		r.Certifications = ""
	} else {
		r.Age = nil
	}
}

// TokenResponse 是登录/注册接口的响应。
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// Profile 是 /me 返回的用户资料。
type Profile struct {
	Email     string  `json:"email"`
	FullName  *string `json:"full_name"`
	Age       *int    `json:"age"`
	Height    *string `json:"height"`
	Weight    *string `json:"weight"`
	BloodType *string `json:"blood_type"`
	Role      string  `json:"role"`
}

// ProfileUpdate 是 PUT /me 的请求体，nil 字段不会被后端修改。
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	Age       *int    `json:"age,omitempty"`
	Height    *string `json:"height,omitempty"`
	Weight    *string `json:"weight,omitempty"`
	BloodType *string `json:"blood_type,omitempty"`
}

// ProfileView 是资料页的展示数据，附带 BMI。
type ProfileView struct {
	Profile
	BMI       *float64 `json:"bmi"`
	BMIStatus string   `json:"bmi_status"`
}

// NewProfileView 根据身高（cm）和体重（kg）计算 BMI，保留一位小数。
// 身高或体重缺失、无法解析或身高为 0 时 BMI 为 nil，状态为 "-"。
func NewProfileView(p Profile) ProfileView {
	v := ProfileView{Profile: p, BMIStatus: "-"}
	if p.Height == nil || p.Weight == nil {
		return v
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(*p.Height), 64)
	if err != nil || h == 0 {
		return v
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(*p.Weight), 64)
	if err != nil {
		return v
	}
	m := h / 100
	bmi := math.Round(w/(m*m)*10) / 10
	v.BMI = &bmi
	v.BMIStatus = BMIStatus(bmi)
	return v
}

// BMIStatus 返回 BMI 对应的分类。
func BMIStatus(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Healthy"
	case bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}
