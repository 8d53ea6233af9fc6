package domain

import "errors"

// Kind classifies an error for callers that need to decide between
// retrying and giving up, and for the HTTP layer's status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

var (
	// ErrInvalidInput wraps malformed or missing request data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrQuizHasNoQuestions is returned when starting a quiz without questions.
	ErrQuizHasNoQuestions = errors.New("quiz has no questions")

	// ErrUnauthenticated is returned when no valid caller identity is present.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the caller's role does not allow the action.
	ErrForbidden = errors.New("forbidden")
	// ErrQuizInactive is returned when a student starts a deactivated quiz.
	ErrQuizInactive = errors.New("quiz is not active")
	// ErrAlreadyCompleted is returned for any mutation of a completed examination,
	// and for a retake attempt.
	ErrAlreadyCompleted = errors.New("examination already completed")
	// ErrNotExaminationOwner is returned when a student acts on another student's examination.
	ErrNotExaminationOwner = errors.New("examination belongs to another student")
	// ErrNotQuizOwner is returned when a teacher acts on a quiz they did not create.
	ErrNotQuizOwner = errors.New("quiz belongs to another teacher")
	// ErrQuizInUse is returned when deleting or restructuring a quiz that has examinations.
	ErrQuizInUse = errors.New("quiz has examinations")

	// ErrQuizNotFound indicates the quiz could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrExaminationNotFound indicates the examination could not be loaded.
	ErrExaminationNotFound = errors.New("examination not found")

	// ErrNoAccessCode is returned when no free access code was found within the retry budget.
	ErrNoAccessCode = errors.New("no access code available")
	// ErrAccessCodeTaken is returned by stores when a concurrent writer claimed the same code.
	ErrAccessCodeTaken = errors.New("access code already taken")
	// ErrDuplicateExamination is returned by stores when an examination for
	// the same quiz and student already exists.
	ErrDuplicateExamination = errors.New("examination already exists")
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrInvalidInput, ErrQuizHasNoQuestions}},
	{KindUnauthenticated, []error{ErrUnauthenticated}},
	{KindForbidden, []error{ErrForbidden, ErrQuizInactive, ErrAlreadyCompleted, ErrNotExaminationOwner, ErrNotQuizOwner, ErrQuizInUse}},
	{KindNotFound, []error{ErrQuizNotFound, ErrExaminationNotFound}},
}

// KindOf reports the kind of err. Errors that match no sentinel are internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}
