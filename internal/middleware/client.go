// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"

	"medifusion-go/internal/config"
	"medifusion-go/internal/session"
	"medifusion-go/pkg/log"
	"medifusion-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 存入 gin.Context 的键名。
const (
	ContextClientID = "clientID"
	ContextSession  = "session"
)

// ClientIdentity 识别发起请求的浏览器。
// 它从签名 cookie 中读取客户端 ID；cookie 缺失或无效时签发一个新的 ID 并写回 cookie，
// 然后把客户端 ID 和对应的 Session 存入 Gin 的上下文中。
func ClientIdentity(tm *token.ClientTokenManager, sessions *session.Manager, cfg config.ClientConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var clientID string
		if raw, err := c.Cookie(cfg.CookieName); err == nil && raw != "" {
			id, err := tm.Verify(raw)
			if err != nil {
				log.Debugw("客户端 cookie 无效，重新签发", "error", err)
			} else {
				clientID = id
			}
		}

		if clientID == "" {
			id, signed, err := tm.Issue()
			if err != nil {
				log.Error("签发客户端 cookie 失败", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    http.StatusInternalServerError,
					"message": "failed to identify client",
				})
				return
			}
			clientID = id
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cfg.CookieName, signed, int(tm.TTL().Seconds()), "/", "", cfg.Secure, true)
		}

		c.Set(ContextClientID, clientID)
		c.Set(ContextSession, sessions.Get(clientID))
		c.Next()
	}
}

// ClientID 返回 ClientIdentity 存入的客户端 ID。
func ClientID(c *gin.Context) string {
	return c.GetString(ContextClientID)
}

// SessionFrom 返回 ClientIdentity 存入的 Session，不存在时返回 nil。
func SessionFrom(c *gin.Context) *session.Session {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}
