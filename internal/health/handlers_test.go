package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (c stubChecker) PingDB(context.Context, time.Duration) error    { return c.dbErr }
func (c stubChecker) PingRedis(context.Context, time.Duration) error { return c.redisErr }

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler{}.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestReady(t *testing.T) {
	cases := []struct {
		name    string
		checker Checker
		status  int
	}{
		{"all healthy", stubChecker{}, http.StatusOK},
		{"db down", stubChecker{dbErr: errors.New("db refused")}, http.StatusServiceUnavailable},
		{"redis down", stubChecker{redisErr: errors.New("redis refused")}, http.StatusServiceUnavailable},
		{"no checker", nil, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Handler{Checker: tc.checker}.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			require.Equal(t, tc.status, rec.Code)
		})
	}
}
