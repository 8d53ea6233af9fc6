package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{fmt.Errorf("%w: title is required", ErrInvalidInput), KindValidation},
		{ErrQuizHasNoQuestions, KindValidation},
		{ErrUnauthenticated, KindUnauthenticated},
		{ErrQuizInactive, KindForbidden},
		{fmt.Errorf("submit: %w", ErrAlreadyCompleted), KindForbidden},
		{ErrNotExaminationOwner, KindForbidden},
		{ErrQuizInUse, KindForbidden},
		{ErrQuizNotFound, KindNotFound},
		{fmt.Errorf("load examination: %w", ErrExaminationNotFound), KindNotFound},
		{ErrNoAccessCode, KindInternal},
		{errors.New("connection reset"), KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), tc.err.Error())
	}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(errors.New("timeout")))
	assert.True(t, Retryable(ErrNoAccessCode))
	assert.False(t, Retryable(ErrQuizNotFound))
	assert.False(t, Retryable(ErrAlreadyCompleted))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "internal", Kind(99).String())
}
