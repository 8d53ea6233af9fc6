package app

import (
	"time"

	"quiz-exam-service/internal/domain"
)

// gradeOutcome is the result of grading one batch of answers.
type gradeOutcome struct {
	// upserts holds the final state of every answer row touched by the batch.
	upserts  []domain.ExaminationAnswer
	statuses []domain.AnswerStatus
	bonus    int
	// answers is the examination's full answer set after the batch.
	answers []domain.ExaminationAnswer
}

// gradeAnswers grades inputs against the quiz answer key. Unknown question ids
// are skipped. Bonus time is credited at most once per question, on the first
// time it becomes correct, and is never taken back.
func gradeAnswers(quiz domain.Quiz, exam domain.Examination, inputs []domain.AnswerInput, now time.Time, newID func() string) gradeOutcome {
	current := make(map[string]domain.ExaminationAnswer, len(exam.Answers))
	order := make([]string, 0, len(exam.Answers)+len(inputs))
	for _, a := range exam.Answers {
		current[a.QuestionID] = a
		order = append(order, a.QuestionID)
	}

	var out gradeOutcome
	touched := make(map[string]bool, len(inputs))
	var touchedOrder []string

	for _, in := range inputs {
		question, ok := quiz.Question(in.QuestionID)
		if !ok {
			continue
		}

		correct := in.Answer == question.CorrectAnswer
		points := 0
		if correct {
			points = question.Points
		}

		prev, exists := current[question.ID]
		answer := prev
		if !exists {
			answer = domain.ExaminationAnswer{
				ID:            newID(),
				ExaminationID: exam.ID,
				QuestionID:    question.ID,
				CreatedAt:     now,
			}
			order = append(order, question.ID)
		}

		if quiz.BonusEnabled && correct && !prev.Correct() && !prev.BonusAwarded {
			out.bonus += quiz.BonusTimePerQuestion
			answer.BonusAwarded = true
		}

		answer.Answer = in.Answer
		answer.IsCorrect = &correct
		answer.PointsEarned = points
		answer.UpdatedAt = now
		current[question.ID] = answer

		if !touched[question.ID] {
			touched[question.ID] = true
			touchedOrder = append(touchedOrder, question.ID)
		}
		out.statuses = append(out.statuses, domain.AnswerStatus{
			QuestionID:   question.ID,
			Answer:       in.Answer,
			IsCorrect:    correct,
			PointsEarned: points,
		})
	}

	for _, id := range touchedOrder {
		out.upserts = append(out.upserts, current[id])
	}
	out.answers = make([]domain.ExaminationAnswer, 0, len(order))
	for _, id := range order {
		out.answers = append(out.answers, current[id])
	}
	return out
}

// finalize computes the terminal score of exam. Bonus time is left as accrued.
func finalize(exam *domain.Examination, quiz domain.Quiz, now time.Time) {
	score := 0
	for _, a := range exam.Answers {
		score += a.PointsEarned
	}
	maxScore := quiz.MaxScore()

	percentage := 0.0
	if maxScore > 0 {
		percentage = float64(score) / float64(maxScore) * 100
	}

	spent := int(now.Sub(exam.StartedAt) / time.Second)
	if spent < 0 {
		spent = 0
	}

	completedAt := now
	exam.Score = score
	exam.Percentage = percentage
	exam.Passed = percentage >= quiz.PassingScore
	exam.TimeSpent = spent
	exam.CompletedAt = &completedAt
}

// summarize builds the result summary. Incomplete examinations report the
// running score and are never marked passed.
func summarize(exam domain.Examination, quiz domain.Quiz) domain.ResultSummary {
	summary := domain.ResultSummary{
		MaxScore:        quiz.MaxScore(),
		Answered:        len(exam.Answers),
		TimeSpent:       exam.TimeSpent,
		BonusTimeEarned: exam.BonusTimeEarned,
		Completed:       exam.IsCompleted(),
		Deadline:        exam.Deadline(quiz),
	}
	running := 0
	for _, a := range exam.Answers {
		running += a.PointsEarned
		if a.Correct() {
			summary.Correct++
		}
	}

	if exam.IsCompleted() {
		summary.Score = exam.Score
		summary.Percentage = exam.Percentage
		summary.Passed = exam.Passed
		return summary
	}
	summary.Score = running
	if summary.MaxScore > 0 {
		summary.Percentage = float64(running) / float64(summary.MaxScore) * 100
	}
	return summary
}
