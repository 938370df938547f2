package model

import (
	"errors"
	"net/http"
)

// AllowedAttachmentTypes 是症状附件允许的媒体类型：图片或 PDF。
var AllowedAttachmentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// ErrUnsupportedAttachment 表示附件不是允许的图片或 PDF。
var ErrUnsupportedAttachment = errors.New("Please select an image (JPEG, PNG, GIF, WebP) or PDF file")

// Attachment 是随症状一起提交的单个文件。
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Validate 校验附件类型。ContentType 为空时按内容嗅探。
func (a *Attachment) Validate() error {
	if a.ContentType == "" {
		a.ContentType = http.DetectContentType(a.Data)
	}
	if !AllowedAttachmentTypes[a.ContentType] {
		return ErrUnsupportedAttachment
	}
	if a.FileName == "" {
		a.FileName = "attachment"
	}
	return nil
}
