package service

import (
	"context"
	"sync"

	"medifusion-go/internal/model"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/apiclient"
	"medifusion-go/pkg/log"
)

// MedicineService 管理服药提醒。后端是唯一的数据源，
// 网关只在内存中为每个客户端保留最近一次获取的列表。
type MedicineService interface {
	List(ctx context.Context, clientID string) ([]model.Medicine, error)
	Create(ctx context.Context, clientID string, in model.MedicineInput) (*model.Medicine, error)
	Delete(ctx context.Context, clientID string, id int) error
	Cached(clientID string) ([]model.Medicine, bool)
	Forget(clientID string)
}

type medicineService struct {
	api      *apiclient.Client
	sessions *session.Manager

	mu    sync.Mutex
	cache map[string][]model.Medicine
}

// NewMedicineService 创建一个新的 MedicineService。
func NewMedicineService(api *apiclient.Client, sessions *session.Manager) MedicineService {
	return &medicineService{api: api, sessions: sessions, cache: make(map[string][]model.Medicine)}
}

func (s *medicineService) List(ctx context.Context, clientID string) ([]model.Medicine, error) {
	items, err := s.api.WithTokens(s.sessions.Get(clientID)).Medicines(ctx)
	if err != nil {
		log.Warnf("[MedicineService] 获取提醒列表失败, client: %s, error: %v", clientID, err)
		return nil, err
	}
	s.mu.Lock()
	s.cache[clientID] = append([]model.Medicine(nil), items...)
	s.mu.Unlock()
	return items, nil
}

// Create 校验输入后交给后端创建，成功后追加到缓存列表末尾。
func (s *medicineService) Create(ctx context.Context, clientID string, in model.MedicineInput) (*model.Medicine, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m, err := s.api.WithTokens(s.sessions.Get(clientID)).CreateMedicine(ctx, in)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if list, ok := s.cache[clientID]; ok {
		s.cache[clientID] = append(list, *m)
	}
	s.mu.Unlock()
	return m, nil
}

// Delete 删除提醒，成功后从缓存中移除。
func (s *medicineService) Delete(ctx context.Context, clientID string, id int) error {
	if err := s.api.WithTokens(s.sessions.Get(clientID)).DeleteMedicine(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.cache[clientID]
	if !ok {
		return nil
	}
	kept := list[:0:0]
	for _, m := range list {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.cache[clientID] = kept
	return nil
}

// Cached 返回缓存的列表副本。
func (s *medicineService) Cached(clientID string) ([]model.Medicine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.cache[clientID]
	if !ok {
		return nil, false
	}
	return append([]model.Medicine(nil), list...), true
}

// Forget 丢弃客户端的缓存，登出时调用。
func (s *medicineService) Forget(clientID string) {
	s.mu.Lock()
	delete(s.cache, clientID)
	s.mu.Unlock()
}
