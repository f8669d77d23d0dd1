package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"workportal/models"
	"workportal/portal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	SetJWTSecret("test-secret")
}

var leader = models.Employee{EmpID: "1001", Role: models.RoleRFDBProductionLeader}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(leader, models.TableTurnManeuver, "sid-1", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "1001", claims.EmpID)
	assert.Equal(t, models.RoleRFDBProductionLeader, claims.Role)
	assert.Equal(t, models.TableTurnManeuver, claims.Table)
	assert.Equal(t, "sid-1", claims.SessionID)
}

func TestValidateTokenRejects(t *testing.T) {
	expired, err := GenerateToken(leader, models.TableProduction, "sid", -time.Minute)
	require.NoError(t, err)

	SetJWTSecret("other-secret")
	foreign, err := GenerateToken(leader, models.TableProduction, "sid", time.Hour)
	require.NoError(t, err)
	SetJWTSecret("test-secret")

	for name, token := range map[string]string{"expired": expired, "wrong key": foreign, "garbage": "abc.def.ghi"} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(token)
			assert.Error(t, err)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/grid", nil)
	assert.Equal(t, "", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))
}

func TestAuthMiddlewareRejects(t *testing.T) {
	reg := portal.NewRegistry()
	handler := AuthMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	valid, err := GenerateToken(leader, models.TableProduction, "closed-session", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"bad token", "Bearer nope"},
		{"session not open", "Bearer " + valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/grid", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireRole(models.RoleGrandLeader)(ok)

	tests := []struct {
		name string
		emp  *models.Employee
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"leader", &leader, http.StatusForbidden},
		{"grand leader", &models.Employee{EmpID: "9000", Role: models.RoleGrandLeader}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/import", nil)
			if tt.emp != nil {
				r = r.WithContext(context.WithValue(r.Context(), EmployeeContextKey, tt.emp))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
