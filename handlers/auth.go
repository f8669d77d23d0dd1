package handlers

import (
	"context"
	"net/http"
	"strconv"

	"workportal/access"
	"workportal/config"
	"workportal/database"
	"workportal/middleware"
	"workportal/models"
	"workportal/portal"
	"workportal/roster"

	"github.com/golang/glog"
)

// OpenFunc starts a portal session for an authenticated employee.
type OpenFunc func(ctx context.Context, cfg *config.Config, emp models.Employee, schema *models.Schema, password string, confirm database.ConfirmFunc) (*portal.Session, error)

type AuthHandler struct {
	config   *config.Config
	roster   *roster.Roster
	sessions *portal.Registry
	open     OpenFunc
}

func NewAuthHandler(cfg *config.Config, ro *roster.Roster, sessions *portal.Registry) *AuthHandler {
	return &AuthHandler{
		config:   cfg,
		roster:   ro,
		sessions: sessions,
		open:     portal.Open,
	}
}

type loginResponse struct {
	Token     string           `json:"token"`
	SessionID string           `json:"session_id"`
	Employee  models.Employee  `json:"employee"`
	Table     models.TableKind `json:"table"`
	Editable  []string         `json:"editable_fields"`
}

// Login authenticates against the roster and then opens the datastore with
// the same credentials. force_terminate lets a privileged identity end its
// other datastore sessions.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	empID := r.FormValue("emp_id")
	password := r.FormValue("password")
	force, _ := strconv.ParseBool(r.FormValue("force_terminate"))

	kind, err := models.ParseTableKind(r.FormValue("table"))
	if err != nil {
		http.Error(w, "Invalid table", http.StatusBadRequest)
		return
	}
	schema, err := models.SchemaFor(kind)
	if err != nil {
		http.Error(w, "Invalid table", http.StatusBadRequest)
		return
	}

	emp, err := h.roster.Authenticate(empID, password)
	if err != nil {
		glog.Warningf("failed login attempt for employee %s", empID)
		writeError(w, err)
		return
	}

	confirm := func(n int) bool {
		glog.Infof("%s has %d other sessions, terminate=%t", emp.EmpID, n, force)
		return force
	}
	session, err := h.open(r.Context(), h.config, emp, schema, password, confirm)
	if err != nil {
		writeError(w, err)
		return
	}
	h.sessions.Add(session)

	token, err := middleware.GenerateToken(emp, kind, session.ID, h.config.JWTExpiration)
	if err != nil {
		h.sessions.Remove(session.ID)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.config.JWTExpiration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		SessionID: session.ID,
		Employee:  emp,
		Table:     kind,
		Editable:  access.NewPolicy(h.config.StrictRowContext).EditableFields(schema, emp.Role),
	})
}

// Logout tears the session down and releases its datastore connection.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if s := middleware.GetSessionFromContext(r.Context()); s != nil {
		h.sessions.Remove(s.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}
