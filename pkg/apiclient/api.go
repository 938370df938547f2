package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"medifusion-go/internal/model"
)

// Login 以表单编码向 /login 提交登录凭据。
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	var out model.TokenResponse
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/login",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup 以 JSON 向 /signup 提交注册信息。
func (c *Client) Signup(ctx context.Context, req model.SignupRequest) (*model.TokenResponse, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	var out model.TokenResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/signup", body: body, contentType: "application/json"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnalysis 创建一个分析任务。没有附件时以 JSON {"text": ...} 发送症状，
// 有附件时改用 multipart 表单，字段为 "symptoms" 和 "file"。
func (c *Client) SubmitAnalysis(ctx context.Context, symptoms string, att *model.Attachment) (*model.AnalysisJob, error) {
	r := request{method: http.MethodPost, path: "/disease/predict"}

	if att == nil {
		body, err := jsonBody(map[string]string{"text": symptoms})
		if err != nil {
			return nil, err
		}
		r.body = body
		r.contentType = "application/json"
	} else {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		if err := mw.WriteField("symptoms", symptoms); err != nil {
			return nil, fmt.Errorf("failed to write symptoms field: %w", err)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(att.FileName)))
		h.Set("Content-Type", att.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, fmt.Errorf("failed to write file part: %w", err)
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("failed to close multipart body: %w", err)
		}
		r.body = buf
		r.contentType = mw.FormDataContentType()
	}

	var job model.AnalysisJob
	if err := c.do(ctx, r, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// PollParams 是任务状态接口的可选查询参数。
type PollParams struct {
	ConsultationID model.ConsultationID
	// WaitSeconds 请求后端最多挂起这么久再返回，0 表示使用后端默认值
	WaitSeconds int
}

// PollAnalysis 查询任务状态。
func (c *Client) PollAnalysis(ctx context.Context, taskID string, p PollParams) (*model.AnalysisJob, error) {
	q := url.Values{}
	if p.ConsultationID != "" {
		q.Set("consultation_id", string(p.ConsultationID))
	}
	if p.WaitSeconds > 0 {
		q.Set("timeout", strconv.Itoa(p.WaitSeconds))
	}

	var job model.AnalysisJob
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/disease/result/" + url.PathEscape(taskID),
		query:  q,
	}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// History 列出用户的历史问诊记录。
func (c *Client) History(ctx context.Context) ([]model.Consultation, error) {
	var out []model.Consultation
	if err := c.do(ctx, request{method: http.MethodGet, path: "/disease/history"}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Consultation{}
	}
	return out, nil
}

// Profile 获取 /me。
func (c *Client) Profile(ctx context.Context) (*model.Profile, error) {
	var out model.Profile
	if err := c.do(ctx, request{method: http.MethodGet, path: "/me"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile 把 u 中非 nil 的字段通过 PUT /me 发送。
func (c *Client) UpdateProfile(ctx context.Context, u model.ProfileUpdate) (*model.Profile, error) {
	body, err := jsonBody(u)
	if err != nil {
		return nil, err
	}
	var out model.Profile
	if err := c.do(ctx, request{method: http.MethodPut, path: "/me", body: body, contentType: "application/json"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Medicines 列出用户的服药提醒。
func (c *Client) Medicines(ctx context.Context) ([]model.Medicine, error) {
	var out []model.Medicine
	if err := c.do(ctx, request{method: http.MethodGet, path: "/medicines"}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Medicine{}
	}
	return out, nil
}

// CreateMedicine 新增一条提醒。
func (c *Client) CreateMedicine(ctx context.Context, in model.MedicineInput) (*model.Medicine, error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, err
	}
	var out model.Medicine
	if err := c.do(ctx, request{method: http.MethodPost, path: "/medicines", body: body, contentType: "application/json"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMedicine 删除一条提醒。
func (c *Client) DeleteMedicine(ctx context.Context, id int) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/medicines/" + strconv.Itoa(id)}, nil)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
