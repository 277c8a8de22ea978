package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OperatorRole identifies a back-office role.
type OperatorRole string

const (
	RoleAdmin   OperatorRole = "admin"
	RoleFinance OperatorRole = "finance"
	RoleSupport OperatorRole = "support"
)

// RoleAuthorizer answers whether an operator holds a role, backed by
// configured email allow-lists.
type RoleAuthorizer struct {
	roleEmails map[OperatorRole]map[string]struct{}
}

// NewRoleAuthorizer creates a role authorizer from per-role email lists.
func NewRoleAuthorizer(adminEmails, financeEmails, supportEmails []string) *RoleAuthorizer {
	return &RoleAuthorizer{
		roleEmails: map[OperatorRole]map[string]struct{}{
			RoleAdmin:   normalizeEmailSet(adminEmails),
			RoleFinance: normalizeEmailSet(financeEmails),
			RoleSupport: normalizeEmailSet(supportEmails),
		},
	}
}

// HasAny reports whether the operator holds at least one of the given roles.
func (a *RoleAuthorizer) HasAny(email string, roles ...OperatorRole) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}
	for _, role := range roles {
		if set, ok := a.roleEmails[role]; ok {
			if _, ok := set[email]; ok {
				return true
			}
		}
	}
	return false
}

// RequireAnyRole returns a middleware enforcing the role allow-list.
func RequireAnyRole(authorizer *RoleAuthorizer, roles ...OperatorRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := GetOperatorID(c)
		if operatorID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Operator not authenticated",
				},
			})
			return
		}

		if authorizer == nil || !authorizer.HasAny(GetEmail(c), roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Insufficient permissions",
				},
			})
			return
		}

		c.Next()
	}
}

// RequireAdmin restricts a route to admin operators.
func RequireAdmin(authorizer *RoleAuthorizer) gin.HandlerFunc {
	return RequireAnyRole(authorizer, RoleAdmin)
}

// RequireRefundRole restricts a route to operators allowed to issue refunds.
func RequireRefundRole(authorizer *RoleAuthorizer) gin.HandlerFunc {
	return RequireAnyRole(authorizer, RoleAdmin, RoleFinance)
}

// RequireOverviewRole restricts a route to operators allowed to read refund state.
func RequireOverviewRole(authorizer *RoleAuthorizer) gin.HandlerFunc {
	return RequireAnyRole(authorizer, RoleAdmin, RoleFinance, RoleSupport)
}

func normalizeEmailSet(emails []string) map[string]struct{} {
	out := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = normalizeEmail(e)
		if e == "" {
			continue
		}
		out[e] = struct{}{}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
