package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 一次 HTTP 请求的参数。
// Body 可以是 nil、io.Reader、[]byte 或任意可 JSON 序列化的值；
// Response 为 *[]byte 时保存原始响应体，否则按 JSON 解析
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}
