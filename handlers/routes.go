package handlers

import (
	"net/http"

	"workportal/middleware"
	"workportal/models"
	"workportal/portal"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(auth *AuthHandler, grid *GridHandler, sessions *portal.Registry) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)

	router.Post("/login", auth.Login)

	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(sessions))

		r.Post("/logout", auth.Logout)
		r.Get("/status", grid.Status)
		r.Get("/subcountries", grid.Subcountries)

		r.Route("/grid", func(r chi.Router) {
			r.Get("/", grid.View)
			r.Post("/load", grid.Load)
			r.Post("/edit/begin", grid.BeginEdit)
			r.Post("/edit/end", grid.EndEdit)
			r.Post("/edit", grid.Edit)
			r.Post("/select", grid.Select)
			r.Post("/paste", grid.Paste)
			r.Post("/clear", grid.Clear)
			r.Post("/sort", grid.Sort)
			r.Post("/filter", grid.Filter)
			r.Get("/values", grid.ColumnValues)
			r.Post("/undo", grid.Undo)
			r.Post("/redo", grid.Redo)
			r.Post("/notice", grid.Notice)
			r.Get("/alerts", grid.Alerts)
			r.Get("/export.csv", grid.ExportCSV)
		})

		// Grand leaders only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleGrandLeader))
			r.Post("/import", grid.Import)
		})
	})

	return router
}
