// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"medifusion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 是日志中记录的请求体的最大字节数。
const maxLoggedBody = 2048

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 只记录 JSON 请求体（截断到 maxLoggedBody），文件上传和密码不会进入日志；
// 响应只记录大小。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		startTime := time.Now()

		var requestBody string
		if c.Request.Body != nil && strings.HasPrefix(c.ContentType(), "application/json") {
			raw, _ := io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))
			requestBody = redact(raw)
		}

		// 处理请求
		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"clientID", ClientID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", requestBody,
			"responseSize", c.Writer.Size(),
		)
	}
}

// redact 截断请求体；包含 password 字段的请求体整体替换。
func redact(raw []byte) string {
	if bytes.Contains(raw, []byte(`"password"`)) {
		return "[redacted]"
	}
	if len(raw) > maxLoggedBody {
		return string(raw[:maxLoggedBody]) + "..."
	}
	return string(raw)
}
