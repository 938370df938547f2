package service

import (
	"context"

	"medifusion-go/internal/model"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/apiclient"
)

// HistoryService 定义了历史问诊记录的接口。
type HistoryService interface {
	// History 返回后端给出的全部记录，limit > 0 时只取前 limit 条。
	History(ctx context.Context, clientID string, limit int) ([]model.Consultation, error)
}

type historyService struct {
	api      *apiclient.Client
	sessions *session.Manager
}

// NewHistoryService 创建一个新的 HistoryService。
func NewHistoryService(api *apiclient.Client, sessions *session.Manager) HistoryService {
	return &historyService{api: api, sessions: sessions}
}

func (s *historyService) History(ctx context.Context, clientID string, limit int) ([]model.Consultation, error) {
	entries, err := s.api.WithTokens(s.sessions.Get(clientID)).History(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
