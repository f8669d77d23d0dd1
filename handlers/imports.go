package handlers

import (
	"io"
	"net/http"
	"strconv"

	"workportal/importer"
)

const maxImportSize = 64 << 20

// Import loads a CSV of work units into the session's table. The file comes
// as the multipart field "file" or as the raw body. truncate=true empties the
// table first and needs confirm=true as well.
func (h *GridHandler) Import(w http.ResponseWriter, r *http.Request) {
	s := session(w, r)
	if s == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	var body io.Reader = r.Body
	if err := r.ParseMultipartForm(maxImportSize); err == nil {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
	}

	q := r.URL.Query()
	truncate, _ := strconv.ParseBool(q.Get("truncate"))
	confirmed, _ := strconv.ParseBool(q.Get("confirm"))

	res, err := s.Import(r.Context(), body, importer.Options{
		Truncate: truncate,
		Confirm:  func(string) bool { return confirmed },
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inserted":  res.Inserted,
		"truncated": res.Truncated,
	})
}
