package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"workportal/models"
	"workportal/portal"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	EmployeeContextKey contextKey = "employee"
	SessionContextKey  contextKey = "session"
)

type Claims struct {
	EmpID     string           `json:"emp_id"`
	Role      models.Role      `json:"role"`
	Table     models.TableKind `json:"table"`
	SessionID string           `json:"sid"`
	jwt.RegisteredClaims
}

var jwtSecret []byte

func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

func GenerateToken(emp models.Employee, table models.TableKind, sessionID string, expiration time.Duration) (string, error) {
	claims := &Claims{
		EmpID:     emp.EmpID,
		Role:      emp.Role,
		Table:     table,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   emp.EmpID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// TokenFromRequest reads the token cookie, then the Authorization header.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// AuthMiddleware accepts a request only when its token is valid and names a
// session that is still open.
func AuthMiddleware(sessions *portal.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := TokenFromRequest(r)
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := ValidateToken(tokenString)
			if err != nil {
				clearTokenCookie(w)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			session, ok := sessions.Get(claims.SessionID)
			if !ok || session.Employee().EmpID != claims.EmpID {
				clearTokenCookie(w)
				http.Error(w, "Session closed", http.StatusUnauthorized)
				return
			}

			emp := session.Employee()
			ctx := context.WithValue(r.Context(), EmployeeContextKey, &emp)
			ctx = context.WithValue(ctx, SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			emp := GetEmployeeFromContext(r.Context())
			if emp == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if emp.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func GetEmployeeFromContext(ctx context.Context) *models.Employee {
	emp, ok := ctx.Value(EmployeeContextKey).(*models.Employee)
	if !ok {
		return nil
	}
	return emp
}

func GetSessionFromContext(ctx context.Context) *portal.Session {
	s, ok := ctx.Value(SessionContextKey).(*portal.Session)
	if !ok {
		return nil
	}
	return s
}
