// Package token 提供了用于签发和验证浏览器客户端身份 cookie 的功能。
// cookie 中只保存一个随机的客户端 ID，它是该浏览器键值存储的命名空间，
// 不代表用户身份。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidClientToken 表示 cookie 签名错误、已过期或缺少客户端 ID。
var ErrInvalidClientToken = errors.New("invalid client token")

// ClientClaims 定义了客户端 cookie 中保存的数据。
type ClientClaims struct {
	ClientID string `json:"cid"`
	jwt.RegisteredClaims
}

// ClientTokenManager 负责客户端 cookie 的生成和验证。
type ClientTokenManager struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewClientTokenManager 创建一个新的 ClientTokenManager。
// secret: 用于 HS256 签名的密钥字符串。
// expireHours: cookie 的有效期（小时）。
func NewClientTokenManager(secret string, expireHours int) *ClientTokenManager {
	return &ClientTokenManager{
		secretKey: []byte(secret),
		ttl:       time.Duration(expireHours) * time.Hour,
		now:       time.Now,
	}
}

// TTL 返回 cookie 的有效期。
func (m *ClientTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue 生成一个新的客户端 ID 及其签名 token。
func (m *ClientTokenManager) Issue() (clientID, tokenString string, err error) {
	clientID = uuid.NewString()
	tokenString, err = m.Sign(clientID)
	if err != nil {
		return "", "", err
	}
	return clientID, tokenString, nil
}

// Sign 为已有的客户端 ID 签发 token，用于续期。
func (m *ClientTokenManager) Sign(clientID string) (string, error) {
	now := m.now()
	claims := ClientClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// Verify 验证 token 并返回其中的客户端 ID。
func (m *ClientTokenManager) Verify(tokenString string) (string, error) {
	claims := &ClientClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return "", errors.Join(ErrInvalidClientToken, err)
	}
	if !tok.Valid {
		return "", ErrInvalidClientToken
	}
	if _, err := uuid.Parse(claims.ClientID); err != nil {
		return "", ErrInvalidClientToken
	}
	return claims.ClientID, nil
}
