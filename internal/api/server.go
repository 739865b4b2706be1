package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"leadharvest/internal/auth"
	"leadharvest/internal/core"
	"leadharvest/internal/store"
)

type Server struct {
	router *chi.Mux
	store  *store.Store
	auth   *auth.Service
	runner *core.Runner
	batch  *core.Batch
	prep   *core.PrepService
}

func NewServer(st *store.Store, authSvc *auth.Service, runner *core.Runner, batch *core.Batch, prep *core.PrepService) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  st,
		auth:   authSvc,
		runner: runner,
		batch:  batch,
		prep:   prep,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Post("/auth/register", s.handleRegister)
	s.router.Post("/auth/login", s.handleLogin)

	s.router.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/auth/logout", s.handleLogout)

		r.Get("/leads", s.handleListLeads)
		r.Post("/leads", s.handleCreateLead)
		r.Get("/leads/summary", s.handleStageSummary)
		r.Get("/leads/{id}", s.handleGetLead)
		r.Patch("/leads/{id}", s.handleUpdateLead)
		r.Delete("/leads/{id}", s.handleDeleteLead)

		r.Post("/scrape", s.handleScrape)
		r.Post("/scrape/batch", s.handleScrapeBatch)
		r.Get("/stats", s.handleStats)
		r.Post("/prep-guide", s.handlePrepGuide)
	})

	// Serve the dashboard
	workDir, _ := os.Getwd()
	filesDir := http.Dir(filepath.Join(workDir, "web"))
	FileServer(s.router, "/", filesDir)
}

func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit any URL parameters.")
	}

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		pathPrefix := strings.TrimSuffix(rctx.RoutePattern(), "/*")
		fs := http.StripPrefix(pathPrefix, http.FileServer(root))
		fs.ServeHTTP(w, r)
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
