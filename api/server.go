/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the console frontend
  5. Actor:      X-Actor-ID / X-Actor-Name into the request context;
                 mutating requests without an actor get 401

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"

	"github.com/balibad/payroll-engine/hr"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderActorID, HeaderActorName},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(actorMiddleware)

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Get("/{id}", h.GetEmployee)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/clock-in", h.ClockIn)
			r.Post("/clock-out", h.ClockOut)
			r.Post("/half-day", h.MarkHalfDay)
			r.Post("/close-day", h.CloseDay)
			r.Get("/roster", h.GetRoster)
		})

		r.Get("/dashboard", h.GetDashboard)

		r.Route("/advances", func(r chi.Router) {
			r.Get("/", h.ListAdvances)
			r.Post("/", h.SubmitAdvance)
			r.Get("/{id}", h.GetAdvance)
			r.Delete("/{id}", h.DeleteAdvance)
			r.Post("/{id}/approve", h.ApproveAdvance)
			r.Post("/{id}/reject", h.RejectAdvance)
			r.Post("/{id}/pay", h.PayAdvance)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Get("/payslips/{employee_id}", h.GetPayslip)
			r.Get("/runs", h.ListRuns)
			r.Post("/runs", h.StartRun)
			r.Get("/runs/{id}", h.GetRun)
			r.Post("/runs/{id}/compute", h.ComputeRun)
			r.Post("/runs/{id}/commit", h.CommitRun)
		})

		r.Get("/activity", h.ListActivity)
	})

	return r
}

// actorMiddleware places the acting user in the request context. Reads pass
// through anonymously; anything that mutates state needs an actor.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActorID))
		if id == "" {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: "missing " + HeaderActorID + " header",
					Code:  hr.Code(hr.ErrMissingActor),
				})
			}
			return
		}
		name := strings.TrimSpace(r.Header.Get(HeaderActorName))
		if name == "" {
			name = id
		}
		ctx := hr.WithActor(r.Context(), hr.Actor{ID: id, Name: name})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
