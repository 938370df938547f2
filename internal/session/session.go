// Package session 是“是否已登录”的唯一事实来源。
// Session 作为显式对象传给需要它的组件，而不是全局可变状态。
package session

import (
	"context"
	"fmt"
	"sync"

	"medifusion-go/pkg/store"
)

// TokenKey 是持久化 bearer token 使用的键名。
const TokenKey = "token"

// Session 绑定一个浏览器客户端的键值存储。
// token 持久化在 KV 中；guest 模式只存在于内存，不会跨“刷新”保留。
// Session 本身不持有可变状态，可以随用随建。
type Session struct {
	clientID string
	kv       store.KV
	guests   *guestSet
}

// New 基于给定的 KV 创建一个独立的 Session。
func New(clientID string, kv store.KV) *Session {
	return &Session{clientID: clientID, kv: kv, guests: newGuestSet()}
}

// ClientID 返回会话所属的浏览器客户端标识。
func (s *Session) ClientID() string {
	return s.clientID
}

// Login 持久化 token。不校验 token 的格式和内容。
func (s *Session) Login(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// Logout 删除持久化的 token，并清除 guest 模式。
func (s *Session) Logout(ctx context.Context) error {
	s.ExitGuest()
	if err := s.kv.Delete(ctx, TokenKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Token 返回当前持久化的 token；ok 为 false 表示未登录。
// 实现 apiclient.TokenSource。
func (s *Session) Token(ctx context.Context) (string, bool, error) {
	tok, ok, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return "", false, fmt.Errorf("read token: %w", err)
	}
	if !ok || tok == "" {
		return "", false, nil
	}
	return tok, true, nil
}

// IsAuthenticated 仅根据 token 是否存在判断登录状态，过期的 token 由后端拒绝。
func (s *Session) IsAuthenticated(ctx context.Context) (bool, error) {
	_, ok, err := s.Token(ctx)
	return ok, err
}

// EnterGuest 进入访客模式。
func (s *Session) EnterGuest() {
	s.guests.add(s.clientID)
}

// ExitGuest 退出访客模式。
func (s *Session) ExitGuest() {
	s.guests.remove(s.clientID)
}

// IsGuest 报告是否处于访客模式。
func (s *Session) IsGuest() bool {
	return s.guests.has(s.clientID)
}

// guestSet 记录处于访客模式的客户端，只有进入访客模式的客户端才占用内存。
type guestSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func newGuestSet() *guestSet {
	return &guestSet{ids: make(map[string]struct{})}
}

func (g *guestSet) add(id string) {
	g.mu.Lock()
	g.ids[id] = struct{}{}
	g.mu.Unlock()
}

func (g *guestSet) remove(id string) {
	g.mu.Lock()
	delete(g.ids, id)
	g.mu.Unlock()
}

func (g *guestSet) has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.ids[id]
	return ok
}

func (g *guestSet) len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}

// Manager 按浏览器客户端标识构造 Session。
// 登录状态在共享 KV 中，Manager 只在内存里保存访客集合，
// 因此只读请求（例如首次访问 GET /）不会留下任何内存条目。
type Manager struct {
	kv     store.KV
	guests *guestSet
}

// NewManager 创建一个 Manager，kv 是所有客户端共享的底层存储。
func NewManager(kv store.KV) *Manager {
	return &Manager{kv: kv, guests: newGuestSet()}
}

// Get 返回 clientID 对应的 Session。同一客户端的多个 Session 共享状态。
func (m *Manager) Get(clientID string) *Session {
	return &Session{clientID: clientID, kv: store.Scoped(m.kv, clientID), guests: m.guests}
}

// Store 返回 clientID 的命名空间 KV，供诊断缓存等其他本地数据使用。
func (m *Manager) Store(clientID string) store.KV {
	return store.Scoped(m.kv, clientID)
}

// Len 返回 Manager 在内存中保存的客户端条目数量。
func (m *Manager) Len() int {
	return m.guests.len()
}
