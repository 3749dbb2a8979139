package api

import (
	"net/http"

	"github.com/ashureev/classgrade/internal/identity"
	"github.com/ashureev/classgrade/internal/middleware"
	"github.com/ashureev/classgrade/internal/planner"
	"github.com/ashureev/classgrade/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Repo     store.Repository
	Assessor planner.Assessor
	Planner  *planner.Planner
	// Limiter throttles fresh=true requests. Nil disables it.
	Limiter *RateLimiter
	// CacheProbe is pinged by /healthz when the cache lives outside the
	// main database.
	CacheProbe     Pinger
	CORSOrigins    []string
	OriginPatterns []string
	IsDevelopment  bool
	// RequestLogging enables chi's request logger.
	RequestLogging bool
	// Console, when set, serves everything under ConsolePath.
	Console http.Handler
}

// ConsolePath is where the embedded research console is mounted.
const ConsolePath = "/ui"

// NewRouter wires every route and the global middleware.
func NewRouter(d Deps) http.Handler {
	courses := NewCourseHandler(d.Assessor, d.Planner, d.Limiter)
	stream := NewResearchStreamHandler(courses, d.OriginPatterns)
	users := NewUserHandler(d.Repo)
	schedules := NewScheduleHandler(d.Repo)
	health := NewHealthHandler(d.Repo, d.CacheProbe)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if d.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(d.CORSOrigins))
	r.Use(identity.Middleware(d.IsDevelopment))

	r.Get("/", Root)
	health.RegisterHealth(r)
	courses.RegisterRoutes(r)
	stream.RegisterRoutes(r)
	users.RegisterRoutes(r)
	schedules.RegisterRoutes(r)

	if d.Console != nil {
		r.Handle(ConsolePath, d.Console)
		r.Handle(ConsolePath+"/*", d.Console)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		Error(w, http.StatusNotFound, "not found")
	})
	return r
}
