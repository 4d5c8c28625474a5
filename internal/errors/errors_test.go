package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"faersignal/domain/core"
)

func TestWrap_ClassifiesDomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("%w: %q", core.ErrUnknownSignalMode, "strict"), CodeConfigInvalid, http.StatusBadRequest},
		{fmt.Errorf("%w: N=1", core.ErrInconsistentTotal), CodeValidationError, http.StatusBadRequest},
		{core.NewNotFoundError("run", "abc"), CodeNotFound, http.StatusNotFound},
		{stderrors.New("boom"), CodeInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		wrapped := Wrap(tt.err, "compute failed")
		assert.Equal(t, tt.code, GetCode(wrapped), tt.err.Error())
		assert.Equal(t, tt.status, HTTPStatus(wrapped))
		assert.True(t, stderrors.Is(wrapped, tt.err))
	}
}

func TestWrap_KeepsAppErrorCode(t *testing.T) {
	inner := DatabaseError("insert failed", stderrors.New("conn reset"))
	outer := Wrapf(inner, "save run %s", "r1")

	assert.Equal(t, CodeDatabaseError, GetCode(outer))
	assert.Equal(t, "save run r1: insert failed: conn reset", outer.Error())
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeInvalidInput, stderrors.New("bad header"))
	assert.Equal(t, CodeInvalidInput, GetCode(err))
	assert.True(t, IsAppError(err))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestNotFound_IsDomainNotFound(t *testing.T) {
	err := NotFound("run")
	assert.True(t, core.IsNotFoundError(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}
