// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"medifusion-go/internal/middleware"
	"medifusion-go/pkg/apiclient"

	"github.com/gin-gonic/gin"
)

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func failure(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}

// backendFailure 把后端调用的错误转换为响应。
// 后端返回的 4xx 原样透传状态码和消息，5xx 与网络错误统一为 502。
func backendFailure(c *gin.Context, err error, fallback string) {
	status := http.StatusBadGateway
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		status = apiErr.StatusCode
	}
	failure(c, status, apiclient.Message(err, fallback))
}

// clientID 返回由 ClientIdentity 中间件注入的浏览器客户端标识。
func clientID(c *gin.Context) string {
	return middleware.ClientID(c)
}
