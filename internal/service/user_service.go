// Package service 包含了网关的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"

	"medifusion-go/internal/model"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/apiclient"
	"medifusion-go/pkg/log"
)

// ErrMissingToken 表示后端登录/注册成功但没有返回 access_token。
var ErrMissingToken = errors.New("backend returned no access token")

// SessionStatus 是落地页需要的会话状态。
type SessionStatus struct {
	Authenticated bool `json:"authenticated"`
	Guest         bool `json:"guest"`
}

// UserService 接口定义了所有与用户会话和资料相关的业务操作。
type UserService interface {
	Login(ctx context.Context, clientID string, creds model.Credentials) error
	Signup(ctx context.Context, clientID string, req model.SignupRequest) error
	Logout(ctx context.Context, clientID string) error
	EnterGuest(clientID string)
	ExitGuest(clientID string)
	Status(ctx context.Context, clientID string) (SessionStatus, error)
	GetProfile(ctx context.Context, clientID string) (*model.ProfileView, error)
	UpdateProfile(ctx context.Context, clientID string, u model.ProfileUpdate) (*model.ProfileView, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	api      *apiclient.Client
	sessions *session.Manager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(api *apiclient.Client, sessions *session.Manager) UserService {
	return &userService{api: api, sessions: sessions}
}

// Login 调用后端表单登录，成功后持久化 token。
func (s *userService) Login(ctx context.Context, clientID string, creds model.Credentials) error {
	resp, err := s.api.Login(ctx, creds)
	if err != nil {
		log.Warnf("[UserService] 登录失败, client: %s, error: %v", clientID, err)
		return err
	}
	return s.persist(ctx, clientID, resp)
}

// Signup 注册新用户，后端直接返回 token，等同于登录。
func (s *userService) Signup(ctx context.Context, clientID string, req model.SignupRequest) error {
	req.Normalize()
	resp, err := s.api.Signup(ctx, req)
	if err != nil {
		log.Warnf("[UserService] 注册失败, client: %s, role: %s, error: %v", clientID, req.Role, err)
		return err
	}
	return s.persist(ctx, clientID, resp)
}

func (s *userService) persist(ctx context.Context, clientID string, resp *model.TokenResponse) error {
	if resp.AccessToken == "" {
		return ErrMissingToken
	}
	sess := s.sessions.Get(clientID)
	if err := sess.Login(ctx, resp.AccessToken); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	sess.ExitGuest()
	log.Infof("[UserService] 客户端 %s 登录成功", clientID)
	return nil
}

// Logout 删除 token 并退出访客模式。
func (s *userService) Logout(ctx context.Context, clientID string) error {
	return s.sessions.Get(clientID).Logout(ctx)
}

func (s *userService) EnterGuest(clientID string) {
	s.sessions.Get(clientID).EnterGuest()
}

func (s *userService) ExitGuest(clientID string) {
	s.sessions.Get(clientID).ExitGuest()
}

// Status 返回是否已登录以及是否处于访客模式。
func (s *userService) Status(ctx context.Context, clientID string) (SessionStatus, error) {
	sess := s.sessions.Get(clientID)
	ok, err := sess.IsAuthenticated(ctx)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{Authenticated: ok, Guest: sess.IsGuest()}, nil
}

// GetProfile 获取 /me 并附带 BMI。
func (s *userService) GetProfile(ctx context.Context, clientID string) (*model.ProfileView, error) {
	p, err := s.api.WithTokens(s.sessions.Get(clientID)).Profile(ctx)
	if err != nil {
		return nil, err
	}
	v := model.NewProfileView(*p)
	return &v, nil
}

// UpdateProfile 只发送非空字段。
func (s *userService) UpdateProfile(ctx context.Context, clientID string, u model.ProfileUpdate) (*model.ProfileView, error) {
	u = compactUpdate(u)
	p, err := s.api.WithTokens(s.sessions.Get(clientID)).UpdateProfile(ctx, u)
	if err != nil {
		return nil, err
	}
	v := model.NewProfileView(*p)
	return &v, nil
}

func compactUpdate(u model.ProfileUpdate) model.ProfileUpdate {
	for _, f := range []**string{&u.FullName, &u.Height, &u.Weight, &u.BloodType} {
		if *f != nil && **f == "" {
			*f = nil
		}
	}
	if u.Age != nil && *u.Age == 0 {
		u.Age = nil
	}
	return u
}
