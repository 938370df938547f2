// Package doctor 提供按推荐专科和邮编在本地医生名录中查找医生的功能。
// 名录随二进制一起打包，查找过程不发出任何网络请求。
package doctor

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultSpecialty 在诊断没有给出推荐专科时使用。
const DefaultSpecialty = "General Physician"

// DefaultCenter 是没有匹配医生时的地图中心（海得拉巴）。
var DefaultCenter = LatLng{Lat: 17.3850, Lng: 78.4867}

//go:embed doctors.json
var doctorsJSON []byte

// LatLng 是一个地理坐标。
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Doctor 是名录中的一条只读记录。
type Doctor struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Specialty       string  `json:"specialty"`
	Hospital        string  `json:"hospital"`
	Location        LatLng  `json:"location"`
	Pincode         string  `json:"pincode"`
	Rating          float64 `json:"rating"`
	ExperienceYears int     `json:"experience_years"`
	Fee             int     `json:"fee"`
	ImageURL        string  `json:"image_url"`
}

type record struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Specialty  string  `json:"specialty"`
	Hospital   string  `json:"hospital"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Pincode    string  `json:"pincode"`
	Rating     float64 `json:"rating"`
	Experience int     `json:"experience"`
	Fee        int     `json:"fee"`
	Image      string  `json:"image"`
}

// Result 是一次查找的结果。
type Result struct {
	Specialty string   `json:"specialty"`
	Pincode   string   `json:"pincode,omitempty"`
	Doctors   []Doctor `json:"doctors"`
	// PincodeFallback 为 true 表示邮编没有匹配，结果退回到仅按专科过滤。
	PincodeFallback bool   `json:"pincode_fallback"`
	Center          LatLng `json:"center"`
}

// Directory 是一份不可变的医生名录。
type Directory struct {
	doctors []Doctor
}

// New 基于给定记录创建名录，记录会被复制。
func New(doctors []Doctor) *Directory {
	return &Directory{doctors: append([]Doctor(nil), doctors...)}
}

// Load 解析打包的名录。
func Load() (*Directory, error) {
	var records []record
	if err := json.Unmarshal(doctorsJSON, &records); err != nil {
		return nil, fmt.Errorf("解析医生名录失败: %w", err)
	}
	doctors := make([]Doctor, 0, len(records))
	for _, r := range records {
		doctors = append(doctors, Doctor{
			ID:              r.ID,
			Name:            r.Name,
			Specialty:       r.Specialty,
			Hospital:        r.Hospital,
			Location:        LatLng{Lat: r.Lat, Lng: r.Lng},
			Pincode:         r.Pincode,
			Rating:          r.Rating,
			ExperienceYears: r.Experience,
			Fee:             r.Fee,
			ImageURL:        r.Image,
		})
	}
	return &Directory{doctors: doctors}, nil
}

// All 返回名录中的全部医生。
func (d *Directory) All() []Doctor {
	return append([]Doctor(nil), d.doctors...)
}

// NormalizeSpecialty 把自由文本的专科建议映射到名录中的专科名称。
func NormalizeSpecialty(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "cardio"):
		return "Cardiologist"
	case strings.Contains(lower, "dermato"), strings.Contains(lower, "skin"):
		return "Dermatologist"
	case strings.Contains(lower, "general"), strings.Contains(lower, "physician"):
		return "General Physician"
	}
	return s
}

// Find 按推荐专科过滤名录，再按邮编精确匹配缩小范围。
// 邮编没有任何匹配时返回该专科的全部医生。
func (d *Directory) Find(specialist, pincode string) Result {
	if strings.TrimSpace(specialist) == "" {
		specialist = DefaultSpecialty
	}
	target := NormalizeSpecialty(specialist)
	pincode = strings.TrimSpace(pincode)

	res := Result{Specialty: target, Pincode: pincode, Doctors: []Doctor{}}
	for _, doc := range d.doctors {
		if strings.EqualFold(doc.Specialty, target) {
			res.Doctors = append(res.Doctors, doc)
		}
	}

	if pincode != "" {
		narrowed := make([]Doctor, 0, len(res.Doctors))
		for _, doc := range res.Doctors {
			if doc.Pincode == pincode {
				narrowed = append(narrowed, doc)
			}
		}
		if len(narrowed) > 0 {
			res.Doctors = narrowed
		} else {
			res.PincodeFallback = true
		}
	}

	res.Center = Center(res.Doctors)
	return res
}

// Center 返回医生坐标的算术平均值，没有医生时返回 DefaultCenter。
func Center(doctors []Doctor) LatLng {
	if len(doctors) == 0 {
		return DefaultCenter
	}
	var lat, lng float64
	for _, doc := range doctors {
		lat += doc.Location.Lat
		lng += doc.Location.Lng
	}
	n := float64(len(doctors))
	return LatLng{Lat: lat / n, Lng: lng / n}
}
