package apperror

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("happy path - code sentinels match wrapped errors", func(t *testing.T) {
		err := fmt.Errorf("service: %w", ErrConversationNotFound)

		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, ErrConversationNotFound)
		assert.NotErrorIs(t, err, ErrMessageNotFound)
		assert.Equal(t, CodeNotFound, CodeOf(err))
		assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
	})

	t.Run("happy path - unavailable hides its cause", func(t *testing.T) {
		err := Unavailable(fmt.Errorf("dial tcp 10.0.0.5:5432: i/o timeout"))

		assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
		assert.Equal(t, "service temporarily unavailable", PublicMessage(err))
		assert.Contains(t, err.Error(), "i/o timeout")
	})

	t.Run("sad path - plain errors map to internal", func(t *testing.T) {
		err := fmt.Errorf("boom")

		assert.Equal(t, CodeUnknown, CodeOf(err))
		assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
		assert.Equal(t, "internal error", PublicMessage(err))
	})
}
