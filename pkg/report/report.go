// Package report 把诊断结果渲染成固定版式、可分页的 PDF。
//
// 排版与渲染分开：Layout 是纯函数，负责把每一行定位到 A4 页面上
// （单位毫米，坐标为基线位置）；Render 再用 fpdf 把排版结果写出。
// 相同的诊断和日期总是得到相同的字节。
package report

import (
	"fmt"
	"io"
	"time"

	"medifusion-go/internal/model"

	"github.com/go-pdf/fpdf"
)

const (
	Title             = "MediFusion"
	DefaultFileName   = "MediFusion_Report.pdf"
	fallbackDiagnosis = "Unable to determine"
	fallbackSpecialty = "General Practitioner"

	marginX       = 20.0
	bulletX       = 25.0
	topY          = 20.0
	firstSectionY = 45.0
	bulletStep    = 7.0
	headingGap    = 8.0
	blockGap      = 15.0
	sectionGap    = 5.0
	pageBreakY    = 270.0
	sectionBreakY = 250.0

	titleSize   = 24.0
	dateSize    = 10.0
	headingSize = 16.0
	bodySize    = 12.0
)

// Line 是页面上的一段文字。
type Line struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Text string  `json:"text"`
	Size float64 `json:"size"`
	Bold bool    `json:"bold"`
}

// Page 按绘制顺序保存一页的所有行。
type Page struct {
	Lines []Line `json:"lines"`
}

// Document 是排版完成的报告。
type Document struct {
	Date  time.Time `json:"date"`
	Pages []Page    `json:"pages"`
}

type builder struct {
	doc Document
	y   float64
}

func (b *builder) add(x, y float64, text string, size float64, bold bool) {
	p := &b.doc.Pages[len(b.doc.Pages)-1]
	p.Lines = append(p.Lines, Line{X: x, Y: y, Text: text, Size: size, Bold: bold})
}

func (b *builder) newPage() {
	b.doc.Pages = append(b.doc.Pages, Page{})
	b.y = topY
}

func (b *builder) block(heading, text string) {
	b.add(marginX, b.y, heading, headingSize, true)
	b.y += headingGap
	b.add(marginX, b.y, text, bodySize, false)
	b.y += blockGap
}

func (b *builder) bullets(heading string, items []string) {
	if len(items) == 0 {
		return
	}
	if b.y > sectionBreakY {
		b.newPage()
	}
	b.add(marginX, b.y, heading, headingSize, true)
	b.y += headingGap
	for _, item := range items {
		b.add(bulletX, b.y, "• "+item, bodySize, false)
		b.y += bulletStep
		if b.y > pageBreakY {
			b.newPage()
		}
	}
	b.y += sectionGap
}

// Layout 为生成于 date 的诊断 d 排版。
func Layout(d model.Diagnosis, date time.Time) Document {
	b := &builder{doc: Document{Date: date}}
	b.newPage()

	b.add(marginX, topY, Title, titleSize, true)
	b.add(marginX, 30, "Report Generated: "+date.Format("January 2, 2006"), dateSize, false)
	b.y = firstSectionY

	b.block("Diagnosis", orDefault(d.Summary, fallbackDiagnosis))
	b.block("Recommended Specialist", orDefault(d.RecommendedSpecialist, fallbackSpecialty))

	b.bullets("Recommended Medical Tests", d.RecommendedTests)
	b.bullets("Tips", d.Tips)
	b.bullets("Prevention", d.Prevention)

	return b.doc
}

// Render 把 doc 以 PDF 格式写入 w。
func Render(w io.Writer, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(doc.Date)
	pdf.SetModificationDate(doc.Date)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(Title+" Report", true)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range doc.Pages {
		pdf.AddPage()
		for _, l := range page.Lines {
			style := ""
			if l.Bold {
				style = "B"
			}
			pdf.SetFont("Helvetica", style, l.Size)
			pdf.Text(l.X, l.Y, tr(l.Text))
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
