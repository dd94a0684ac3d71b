package service

import (
	"context"

	"github.com/IdrisKulubi/HIH-sub002/internal/auth"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
)

type requestIDKey struct{}
type clientIPKey struct{}

// SystemActor 后台任务使用的操作人
var SystemActor = &workflow.Actor{ID: "system", Role: workflow.RoleAdmin, Name: "deadline scheduler"}

// WithRequestInfo 将请求 ID 与客户端 IP 写入 context
func WithRequestInfo(ctx context.Context, requestID, ip string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// GetRequestID 从 context 获取请求 ID
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// GetClientIP 从 context 获取客户端 IP
func GetClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

// SystemContext 返回以系统身份执行的 context
func SystemContext(ctx context.Context) context.Context {
	return auth.WithUser(ctx, SystemActor)
}
