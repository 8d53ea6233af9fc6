package http

import (
	"log/slog"
	"net/http"

	"quiz-exam-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps are the collaborators NewRouter mounts.
type RouterDeps struct {
	Handlers       *Handlers
	Monitor        *MonitorHandler
	Tokens         TokenParser
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP surface of the service.
func NewRouter(d RouterDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	h := d.Handlers
	authoring := RequireRole(logger, domain.RoleTeacher, domain.RoleAdmin)
	students := RequireRole(logger, domain.RoleStudent)

	r.Group(func(pr chi.Router) {
		pr.Use(Authenticate(d.Tokens, logger))

		pr.Route("/quizzes", func(qr chi.Router) {
			qr.Get("/code/{code}", h.LookupQuiz)

			qr.Group(func(ar chi.Router) {
				ar.Use(authoring)
				ar.Post("/", h.CreateQuiz)
				ar.Get("/", h.ListQuizzes)
				ar.Get("/{id}", h.GetQuiz)
				ar.Patch("/{id}", h.UpdateQuiz)
				ar.Delete("/{id}", h.DeleteQuiz)
				ar.Get("/{id}/results.csv", h.ExportResults)
				if d.Monitor != nil {
					ar.Get("/{id}/monitor", d.Monitor.ServeWS)
				}
			})
		})

		pr.With(students).Post("/examinations", h.StartExamination)
		pr.With(students).Patch("/examinations/{id}", h.SubmitExamination)
		pr.Get("/examinations/{id}", h.GetExamination)
		pr.Get("/results/{token}", h.GetResultByToken)
	})

	return r
}
