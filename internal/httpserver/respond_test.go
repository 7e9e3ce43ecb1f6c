package httpserver

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/internal/domain"
)

func TestPageParams(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/messages/direct/u1", nil)
		page, pageSize, err := pageParams(r, 50)
		require.NoError(t, err)
		assert.Equal(t, 1, page)
		assert.Equal(t, 50, pageSize)
	})

	t.Run("Explicit", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/messages/direct/u1?page=3&page_size=10", nil)
		page, pageSize, err := pageParams(r, 50)
		require.NoError(t, err)
		assert.Equal(t, 3, page)
		assert.Equal(t, 10, pageSize)
	})

	t.Run("RejectsGarbage", func(t *testing.T) {
		for _, target := range []string{
			"/messages/direct/u1?page=abc",
			"/messages/direct/u1?page_size=ten",
			"/messages/direct/u1?page=1.5",
		} {
			r := httptest.NewRequest("GET", target, nil)
			_, _, err := pageParams(r, 50)
			assert.ErrorIs(t, err, domain.ErrValidation, target)
		}
	})
}

func TestQueryIntRejectionStatus(t *testing.T) {
	r := httptest.NewRequest("GET", "/users?limit=lots", nil)
	_, err := queryInt(r, "limit", 50)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	writeError(rec, err)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "limit must be an integer")
}
