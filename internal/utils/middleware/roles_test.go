package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestAuthorizer() *RoleAuthorizer {
	return NewRoleAuthorizer(
		[]string{"Admin@Clinic.example"},
		[]string{"finance@clinic.example"},
		[]string{"support@clinic.example", " "},
	)
}

func TestRoleAuthorizer_HasAny(t *testing.T) {
	a := newTestAuthorizer()

	tests := []struct {
		name  string
		email string
		roles []OperatorRole
		want  bool
	}{
		{"admin matches", "admin@clinic.example", []OperatorRole{RoleAdmin}, true},
		{"case insensitive", "ADMIN@CLINIC.EXAMPLE", []OperatorRole{RoleAdmin}, true},
		{"finance not admin", "finance@clinic.example", []OperatorRole{RoleAdmin}, false},
		{"any of several", "support@clinic.example", []OperatorRole{RoleAdmin, RoleSupport}, true},
		{"unknown email", "stranger@clinic.example", []OperatorRole{RoleAdmin, RoleFinance, RoleSupport}, false},
		{"empty email", "", []OperatorRole{RoleAdmin}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.HasAny(tt.email, tt.roles...))
		})
	}
}

func roleTestRouter(email string, guard gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	// Simulate the auth middleware having validated a token.
	r.Use(func(c *gin.Context) {
		if email != "" {
			c.Set(OperatorIDKey, uuid.New())
			c.Set(EmailKey, email)
		}
	})
	r.GET("/guarded", guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireRefundRole(t *testing.T) {
	a := newTestAuthorizer()

	tests := []struct {
		name       string
		email      string
		wantStatus int
	}{
		{"admin allowed", "admin@clinic.example", http.StatusOK},
		{"finance allowed", "finance@clinic.example", http.StatusOK},
		{"support forbidden", "support@clinic.example", http.StatusForbidden},
		{"unknown forbidden", "stranger@clinic.example", http.StatusForbidden},
		{"unauthenticated", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := roleTestRouter(tt.email, RequireRefundRole(a))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/guarded", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireOverviewRole_IncludesSupport(t *testing.T) {
	a := newTestAuthorizer()
	router := roleTestRouter("support@clinic.example", RequireOverviewRole(a))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdmin_NilAuthorizerDeniesAll(t *testing.T) {
	router := roleTestRouter("admin@clinic.example", RequireAdmin(nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}
