package auth

import (
	"context"

	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/gin-gonic/gin"
)

type userContextKey struct{}

// ContextKeyUser gin 上下文中保存当前用户的键
const ContextKeyUser = "current_user"

// WithUser 将当前用户写入 context
func WithUser(ctx context.Context, user *workflow.Actor) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// CurrentUser 获取当前用户, 未认证时返回 nil
func CurrentUser(ctx context.Context) *workflow.Actor {
	if ctx == nil {
		return nil
	}
	if user, ok := ctx.Value(userContextKey{}).(*workflow.Actor); ok {
		return user
	}
	return nil
}

// SetUser 将当前用户写入 gin 上下文和请求 context
func SetUser(c *gin.Context, user *workflow.Actor) {
	c.Set(ContextKeyUser, user)
	c.Set("user_id", user.ID)
	c.Request = c.Request.WithContext(WithUser(c.Request.Context(), user))
}

// rolePrecedence 多个 realm 角色时取权限最高者
var rolePrecedence = []workflow.Role{
	workflow.RoleAdmin,
	workflow.RoleOversight,
	workflow.RoleTechnicalReviewer,
	workflow.RoleReviewer2,
	workflow.RoleReviewer1,
	workflow.RoleApplicant,
}

// ResolveRole 将 Keycloak realm 角色映射为工作流角色
// 没有匹配的角色时视为申请人
func ResolveRole(realmRoles []string) workflow.Role {
	held := make(map[workflow.Role]bool, len(realmRoles))
	for _, r := range realmRoles {
		held[workflow.Role(r)] = true
	}
	for _, role := range rolePrecedence {
		if held[role] {
			return role
		}
	}
	return workflow.RoleApplicant
}
