package http

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/auth"
	"quiz-exam-service/internal/domain"

	"github.com/go-chi/chi/v5"
)

// Handlers exposes the quiz and examination use cases over JSON.
type Handlers struct {
	quizzes *app.QuizService
	exams   *app.ExaminationService
	logger  *slog.Logger
}

func NewHandlers(quizzes *app.QuizService, exams *app.ExaminationService, logger *slog.Logger) *Handlers {
	return &Handlers{quizzes: quizzes, exams: exams, logger: logger}
}

func (h *Handlers) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var draft app.QuizDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	quiz, err := h.quizzes.CreateQuiz(r.Context(), callerOf(r), draft)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, quiz)
}

func (h *Handlers) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.quizzes.ListQuizzes(r.Context(), callerOf(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, quizzes)
}

func (h *Handlers) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.quizzes.GetQuiz(r.Context(), callerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, quiz)
}

func (h *Handlers) UpdateQuiz(w http.ResponseWriter, r *http.Request) {
	var patch app.QuizPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	quiz, err := h.quizzes.UpdateQuiz(r.Context(), callerOf(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, quiz)
}

func (h *Handlers) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.quizzes.DeleteQuiz(r.Context(), callerOf(r), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handlers) ExportResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var buf bytes.Buffer
	if err := h.quizzes.ExportResults(r.Context(), callerOf(r), id, &buf); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "quiz-"+id+"-results.csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handlers) LookupQuiz(w http.ResponseWriter, r *http.Request) {
	summary, err := h.quizzes.LookupByAccessCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

type startRequest struct {
	QuizID     string `json:"quizId"`
	AccessCode string `json:"accessCode"`
}

func (h *Handlers) StartExamination(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	quizID := strings.TrimSpace(req.QuizID)
	if quizID == "" && req.AccessCode != "" {
		summary, err := h.quizzes.LookupByAccessCode(r.Context(), strings.TrimSpace(req.AccessCode))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		quizID = summary.ID
	}

	res, err := h.exams.Start(r.Context(), quizID, callerOf(r).ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	writeData(w, status, res)
}

type submitRequest struct {
	Answers  []domain.AnswerInput `json:"answers"`
	Complete bool                 `json:"complete"`
}

type submitResponse struct {
	Examination domain.Examination    `json:"examination"`
	Statuses    []domain.AnswerStatus `json:"statuses"`
}

// SubmitExamination grades the submitted answers and, when asked, completes
// the examination in the same request.
func (h *Handlers) SubmitExamination(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	student := callerOf(r).ID

	res, err := h.exams.SubmitAnswers(r.Context(), id, student, req.Answers)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := submitResponse{Examination: res.Examination, Statuses: res.Statuses}
	if req.Complete {
		exam, err := h.exams.Complete(r.Context(), id, student)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		out.Examination = exam
	}
	if out.Statuses == nil {
		out.Statuses = []domain.AnswerStatus{}
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handlers) GetExamination(w http.ResponseWriter, r *http.Request) {
	res, err := h.exams.GetResult(r.Context(), callerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *Handlers) GetResultByToken(w http.ResponseWriter, r *http.Request) {
	res, err := h.exams.GetResultByToken(r.Context(), callerOf(r), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// callerOf is only used behind Authenticate, which guarantees a caller.
func callerOf(r *http.Request) domain.Caller {
	caller, _ := auth.CallerFrom(r.Context())
	return caller
}
