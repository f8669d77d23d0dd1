package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"workportal/conflict"
	"workportal/middleware"
	"workportal/models"
	"workportal/portal"

	"github.com/golang/glog"
)

// GridHandler exposes the trigger points of the logged-in user's session.
type GridHandler struct{}

func NewGridHandler() *GridHandler {
	return &GridHandler{}
}

// session is only nil when the route was mounted without AuthMiddleware.
func session(w http.ResponseWriter, r *http.Request) *portal.Session {
	s := middleware.GetSessionFromContext(r.Context())
	if s == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return s
}

func (h *GridHandler) View(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	v, err := s.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *GridHandler) Load(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var filter models.Filter
	if err := readJSON(r, &filter); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.Load(r.Context(), filter); err != nil {
		writeError(w, err)
		return
	}
	h.View(w, r)
}

func (h *GridHandler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var ref models.CellRef
	if err := readJSON(r, &ref); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	value, err := s.BeginEdit(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": value})
}

func (h *GridHandler) EndEdit(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var ref models.CellRef
	if err := readJSON(r, &ref); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.EndEdit(r.Context(), ref); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editRequest struct {
	Key   string `json:"s_no"`
	Field string `json:"field"`
	Value string `json:"value"`
}

func (h *GridHandler) Edit(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var req editRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.EditCell(r.Context(), req.Key, req.Field, req.Value); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectRequest struct {
	Cells []models.CellRef `json:"cells"`
	Add   bool             `json:"add"`
}

func (h *GridHandler) Select(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var req selectRequest
	if err := readJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.Select(r.Context(), req.Cells, req.Add); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GridHandler) Paste(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := readJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	n, err := s.Paste(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"written": n})
}

func (h *GridHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	n, err := s.Clear(r.Context(), func(int) bool { return confirmed })
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *GridHandler) Sort(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var req struct {
		Field string `json:"field"`
		Desc  bool   `json:"desc"`
	}
	if err := readJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.Sort(r.Context(), req.Field, req.Desc); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GridHandler) Filter(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var req struct {
		Field  string   `json:"field"`
		Values []string `json:"values"`
	}
	if err := readJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.SetColumnFilter(r.Context(), req.Field, req.Values); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GridHandler) ColumnValues(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	values, err := s.ColumnValues(r.Context(), r.URL.Query().Get("field"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *GridHandler) Undo(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	label, err := s.Undo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"undone": label})
}

func (h *GridHandler) Redo(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	label, err := s.Redo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redone": label})
}

// Notice refreshes rows by key, for clients that learned of a change out of
// band.
func (h *GridHandler) Notice(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := readJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.ApplyNotice(r.Context(), req.Keys); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Alerts drains the privilege and conflict alerts raised for the session.
func (h *GridHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	alerts := s.Alerts()
	if alerts == nil {
		alerts = []conflict.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *GridHandler) Subcountries(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	names, err := s.Subcountries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, append([]string{models.AllSubcountries}, names...))
}

func (h *GridHandler) Status(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": s.ID,
		"employee":   s.Employee(),
		"table":      s.Schema().Kind,
		"listening":  s.Listening(),
	})
}

// ExportCSV writes the visible rows as they are currently shown.
func (h *GridHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}
	v, err := s.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	filename := fmt.Sprintf("%s_%s.csv", s.Schema().Table, time.Now().Format("20060102_1504"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(v.Columns); err != nil {
		glog.Warningf("export %s: %v", s.Schema().Table, err)
		return
	}
	record := make([]string, len(v.Columns))
	for _, row := range v.Rows {
		for i, c := range v.Columns {
			record[i] = row.Cells[c].Value
		}
		if err := writer.Write(record); err != nil {
			glog.Warningf("export %s: %v", s.Schema().Table, err)
			return
		}
	}
}
