package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quarryproj/quarry/internal/api"
	apiMiddleware "github.com/quarryproj/quarry/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.queue)
	repositoryHandler := api.NewRepositoryHandler(app.repositoryService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Delete("/tasks/{id}", taskHandler.CancelTask)

		r.Post("/repositories", repositoryHandler.CreateRepository)
		r.Get("/repositories", repositoryHandler.ListRepositories)
		r.Get("/repositories/{id}", repositoryHandler.GetRepository)
		r.Delete("/repositories/{id}", repositoryHandler.DeleteRepository)
		r.Post("/repositories/{id}/sync", repositoryHandler.SyncRepository)
		r.Post("/repositories/{id}/clone", repositoryHandler.CloneRepository)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
