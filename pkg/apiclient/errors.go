package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// APIError 是后端的非 2xx 响应，已归一化为一条展示用的消息。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// errorBody 覆盖后端所有的错误格式：
// {"detail": "text"}、{"detail": [{"msg": ...}]}、{"detail": {...}}、{"message": "text"}。
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

type detailItem struct {
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func decodeError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if msg := detailMessage(eb.Detail); msg != "" {
			e.Message = msg
			return e
		}
		if eb.Message != "" {
			e.Message = eb.Message
			return e
		}
	}

	e.Message = http.StatusText(status)
	if e.Message == "" {
		e.Message = "An error occurred"
	}
	return e
}

// detailMessage 优先使用最具体的字段。
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			var di detailItem
			if err := json.Unmarshal(item, &di); err == nil && di.Msg != "" {
				msgs = append(msgs, di.Msg)
				continue
			}
			var text string
			if err := json.Unmarshal(item, &text); err == nil && text != "" {
				msgs = append(msgs, text)
			}
		}
		return strings.Join(msgs, ", ")
	}

	var obj detailItem
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Msg != "" {
			return obj.Msg
		}
		if obj.Message != "" {
			return obj.Message
		}
	}
	return string(raw)
}

// Message 把任意错误转换为一条面向用户的消息。
// 后端返回的错误保留归一化后的消息，传输失败、解析失败等其他错误一律返回 fallback。
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// IsStatus 报告 err 是否为指定状态码的 *APIError。
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
