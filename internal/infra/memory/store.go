package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/domain"
)

type examKey struct {
	quizID    string
	studentID string
}

// Store is an in-memory implementation of app.Store. Transactions hold the
// store lock and are applied only when the callback succeeds.
type Store struct {
	mu        sync.RWMutex
	quizzes   map[string]domain.Quiz
	codes     map[string]string
	exams     map[string]domain.Examination
	examIndex map[examKey]string
	tokens    map[string]string
	answers   map[string][]domain.ExaminationAnswer
}

func NewStore() *Store {
	return &Store{
		quizzes:   make(map[string]domain.Quiz),
		codes:     make(map[string]string),
		exams:     make(map[string]domain.Examination),
		examIndex: make(map[examKey]string),
		tokens:    make(map[string]string),
		answers:   make(map[string][]domain.ExaminationAnswer),
	}
}

var _ app.Store = (*Store)(nil)

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[quiz.AccessCode]; ok {
		return domain.ErrAccessCodeTaken
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	s.codes[quiz.AccessCode] = quiz.ID
	return nil
}

func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *Store) GetQuizByAccessCode(ctx context.Context, code string) (domain.Quiz, error) {
	s.mu.RLock()
	id, ok := s.codes[code]
	s.mu.RUnlock()
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return s.LoadQuiz(ctx, id)
}

func (s *Store) AccessCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *Store) UpdateQuiz(_ context.Context, quiz domain.Quiz, replaceQuestions bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.quizzes[quiz.ID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	if replaceQuestions {
		if s.hasExaminationsLocked(quiz.ID) {
			return domain.ErrQuizInUse
		}
	} else {
		quiz.Questions = current.Questions
	}
	quiz.AccessCode = current.AccessCode
	quiz.CreatorID = current.CreatorID
	quiz.CreatedAt = current.CreatedAt
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	if s.hasExaminationsLocked(quizID) {
		return domain.ErrQuizInUse
	}
	delete(s.quizzes, quizID)
	delete(s.codes, quiz.AccessCode)
	return nil
}

func (s *Store) ListQuizzes(_ context.Context, creatorID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		if creatorID != "" && quiz.CreatorID != creatorID {
			continue
		}
		out = append(out, cloneQuiz(quiz))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateExamination(_ context.Context, exam domain.Examination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[exam.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	key := examKey{quizID: exam.QuizID, studentID: exam.StudentID}
	if _, ok := s.examIndex[key]; ok {
		return domain.ErrDuplicateExamination
	}
	exam.Answers = nil
	s.exams[exam.ID] = exam
	s.examIndex[key] = exam.ID
	s.tokens[exam.Token] = exam.ID
	return nil
}

func (s *Store) FindExamination(_ context.Context, quizID, studentID string) (domain.Examination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.examIndex[examKey{quizID: quizID, studentID: studentID}]
	if !ok {
		return domain.Examination{}, domain.ErrExaminationNotFound
	}
	return s.examinationLocked(id)
}

func (s *Store) GetExamination(_ context.Context, examID string) (domain.Examination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.examinationLocked(examID)
}

func (s *Store) GetExaminationByToken(_ context.Context, token string) (domain.Examination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	if !ok {
		return domain.Examination{}, domain.ErrExaminationNotFound
	}
	return s.examinationLocked(id)
}

func (s *Store) ListExaminations(_ context.Context, quizID string) ([]domain.Examination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Examination{}
	for id, exam := range s.exams {
		if exam.QuizID != quizID {
			continue
		}
		full, err := s.examinationLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RunInTx serializes fn against every other write. Staged changes are applied
// only if fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.ExaminationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:   s,
		exams:   make(map[string]domain.Examination),
		answers: make(map[string][]domain.ExaminationAnswer),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, exam := range tx.exams {
		exam.Answers = nil
		s.exams[id] = exam
	}
	for id, answers := range tx.answers {
		s.answers[id] = answers
	}
	return nil
}

func (s *Store) examinationLocked(id string) (domain.Examination, error) {
	exam, ok := s.exams[id]
	if !ok {
		return domain.Examination{}, domain.ErrExaminationNotFound
	}
	exam.Answers = cloneAnswers(s.answers[id])
	return exam, nil
}

func (s *Store) hasExaminationsLocked(quizID string) bool {
	for key := range s.examIndex {
		if key.quizID == quizID {
			return true
		}
	}
	return false
}

// memoryTx stages writes while the store lock is held by RunInTx.
type memoryTx struct {
	store   *Store
	exams   map[string]domain.Examination
	answers map[string][]domain.ExaminationAnswer
}

func (t *memoryTx) LockExamination(_ context.Context, examID string) (domain.Examination, error) {
	exam, ok := t.exams[examID]
	if !ok {
		var err error
		if exam, err = t.store.examinationLocked(examID); err != nil {
			return domain.Examination{}, err
		}
	}
	exam.Answers = cloneAnswers(t.answersFor(examID))
	return exam, nil
}

func (t *memoryTx) UpsertAnswers(_ context.Context, answers []domain.ExaminationAnswer) error {
	for _, answer := range answers {
		if _, ok := t.store.exams[answer.ExaminationID]; !ok {
			return domain.ErrExaminationNotFound
		}
		staged := cloneAnswers(t.answersFor(answer.ExaminationID))
		replaced := false
		for i := range staged {
			if staged[i].QuestionID == answer.QuestionID {
				answer.ID = staged[i].ID
				answer.CreatedAt = staged[i].CreatedAt
				staged[i] = answer
				replaced = true
				break
			}
		}
		if !replaced {
			staged = append(staged, answer)
		}
		t.answers[answer.ExaminationID] = staged
	}
	return nil
}

func (t *memoryTx) SaveExamination(_ context.Context, exam domain.Examination) error {
	if _, ok := t.store.exams[exam.ID]; !ok {
		return domain.ErrExaminationNotFound
	}
	exam.Answers = nil
	t.exams[exam.ID] = exam
	return nil
}

func (t *memoryTx) answersFor(examID string) []domain.ExaminationAnswer {
	if staged, ok := t.answers[examID]; ok {
		return staged
	}
	return t.store.answers[examID]
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	out := q
	if q.TimeLimit != nil {
		limit := *q.TimeLimit
		out.TimeLimit = &limit
	}
	out.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string{}, question.Options...)
		out.Questions[i] = question
	}
	return out
}

func cloneAnswers(in []domain.ExaminationAnswer) []domain.ExaminationAnswer {
	out := make([]domain.ExaminationAnswer, len(in))
	for i, a := range in {
		if a.IsCorrect != nil {
			correct := *a.IsCorrect
			a.IsCorrect = &correct
		}
		out[i] = a
	}
	return out
}
