package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByCodeThroughWraps(t *testing.T) {
	base := DegenerateHistogram("only 2 non-empty bins in [0, 100)")
	wrapped := Wrap(base, "trial 7")
	std := fmt.Errorf("cli: %w", wrapped)

	assert.True(t, stderrors.Is(std, ErrDegenerateHistogram))
	assert.False(t, stderrors.Is(std, ErrFitNonConvergence))
	assert.Equal(t, CodeDegenerateHistogram, GetCode(wrapped))
}

func TestWrap_ForeignErrorBecomesInternal(t *testing.T) {
	err := Wrap(fmt.Errorf("disk full"), "saving trials")
	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.Equal(t, "saving trials: disk full", err.Error())
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeStorageError, fmt.Errorf("locked"))
	assert.True(t, stderrors.Is(err, New(CodeStorageError, "")))
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
}
