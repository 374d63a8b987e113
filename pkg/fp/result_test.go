package fp

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	ok := Success(42)
	assert.True(t, IsSuccess(ok))
	assert.False(t, IsFailure(ok))
	assert.NoError(t, GetError(ok))
	assert.Equal(t, 42, GetValue(ok))

	boom := errors.New("boom")
	failed := Failure[int](boom)
	assert.True(t, IsFailure(failed))
	assert.ErrorIs(t, GetError(failed), boom)
	assert.Zero(t, GetValue(failed))
}

func TestMap(t *testing.T) {
	format := Map(strconv.Itoa)

	assert.Equal(t, "7", GetValue(format(Success(7))))

	boom := errors.New("boom")
	mapped := format(Failure[int](boom))
	assert.ErrorIs(t, GetError(mapped), boom)
	assert.Empty(t, GetValue(mapped))
}
