package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: bad title", domain.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("save: %w", storage.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{domain.ErrAlreadyProcessing, http.StatusConflict},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{errors.Join(domain.ErrGeneration, errors.New("503")), http.StatusBadGateway},
		{domain.ErrEmbedding, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestAbortHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for err, want := range map[error]string{
		errors.New("sqlite: database is locked"): "internal server error",
		domain.ErrNotFound:                       "resource not found",
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Abort(c, err)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, want, body["error"])
		assert.True(t, c.IsAborted())
	}
}
