package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybank/internal/domain"
	"mybank/pkg/logger"
)

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{domain.ErrAccountDisabled, http.StatusForbidden, "account_disabled"},
		{domain.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
		{domain.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
		{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
		{fmt.Errorf("post: %w", domain.ErrUnavailable), http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), logger.Nop(), tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"`+tc.code+`"`)
		})
	}
}

func TestUnavailableSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), logger.Nop(), domain.ErrUnavailable)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestInternalErrorsDoNotLeakDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), logger.Nop(), errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestDecode(t *testing.T) {
	var dst struct {
		Amount domain.Money `json:"amount"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1.005"}`))
	err := Decode(httptest.NewRecorder(), req, &dst)
	require.Error(t, err)
	var de *domain.Error
	assert.ErrorAs(t, err, &de)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.ErrorIs(t, Decode(httptest.NewRecorder(), req, &dst), domain.ErrInvalidInput)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.34"}`))
	require.NoError(t, Decode(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "12.34", dst.Amount.String())
}
