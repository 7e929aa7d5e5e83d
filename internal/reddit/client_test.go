package reddit

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, c := range cases {
		got := classifyStatus(c.status)
		if c.want == nil {
			assert.NoError(t, got)
			continue
		}
		assert.ErrorIs(t, got, c.want)
	}
}

func TestClassifyStatus_UnknownServerErrorIsGeneric(t *testing.T) {
	err := classifyStatus(http.StatusInternalServerError)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
}
