package middleware

import (
	"net/http"

	"medifusion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// LandingPath 是未登录时被重定向到的公开页面。
const LandingPath = "/"

// RequireSession 保护只有登录用户才能访问的页面。
// 没有持久化 token 时重定向到落地页；有 token 时直接放行，不校验其有效性，
// 过期的 token 由后端在后续调用中拒绝。
// 此中间件必须在 ClientIdentity 之后使用。
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := SessionFrom(c)
		if sess == nil {
			c.Redirect(http.StatusFound, LandingPath)
			c.Abort()
			return
		}
		ok, err := sess.IsAuthenticated(c.Request.Context())
		if err != nil {
			log.Error("读取会话 token 失败", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    http.StatusInternalServerError,
				"message": "session store unavailable",
			})
			return
		}
		if !ok {
			c.Redirect(http.StatusFound, LandingPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSessionOrGuest 用于落地页上的功能：已登录或处于访客模式均可使用。
// 两者都不满足时返回 401，而不是重定向。
func RequireSessionOrGuest() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := SessionFrom(c)
		if sess != nil {
			if sess.IsGuest() {
				c.Next()
				return
			}
			ok, err := sess.IsAuthenticated(c.Request.Context())
			if err != nil {
				log.Error("读取会话 token 失败", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    http.StatusInternalServerError,
					"message": "session store unavailable",
				})
				return
			}
			if ok {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "Please log in or continue as guest",
		})
	}
}
