// Package server assembles the HTTP routes of the file service.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/fileversion/service/internal/auth"
	"github.com/fileversion/service/internal/file"
	appMiddleware "github.com/fileversion/service/internal/middleware"
)

// Deps are the handlers and collaborators mounted by NewRouter.
type Deps struct {
	Auth     *auth.Handler
	Files    *file.Handler
	Verifier appMiddleware.TokenVerifier
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Log     zerolog.Logger
}

// NewRouter returns the root handler.
//
//	GET    /health
//	GET    /metrics
//	GET    /swagger/*
//	POST   /auth/login
//	GET    /file/public/{version}
//	POST   /file/private              (bearer token)
//	DELETE /file/private/{version}    (bearer token)
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(d.Log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Post("/auth/login", d.Auth.Login)

	r.Route("/file", func(r chi.Router) {
		r.Get("/public/{version}", d.Files.Retrieve)

		r.Route("/private", func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(d.Verifier))
			r.Post("/", d.Files.Upload)
			r.Delete("/{version}", d.Files.Delete)
		})
	})

	return r
}
