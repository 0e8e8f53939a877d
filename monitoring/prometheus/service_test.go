package prometheus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trinnode/Sentinel/runtime"
	"github.com/trinnode/Sentinel/testing/assert"
	"github.com/trinnode/Sentinel/testing/require"
)

type okService struct{}

func (_ *okService) Start()        {}
func (_ *okService) Stop() error   { return nil }
func (_ *okService) Status() error { return nil }

type failingService struct{}

func (_ *failingService) Start()      {}
func (_ *failingService) Stop() error { return nil }
func (_ *failingService) Status() error {
	return errors.New("I am failing. Do not trust me!")
}

func TestHealthz_OK(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&okService{}))
	s := NewService("" /*addr*/, registry)

	req, err := http.NewRequest("GET", "/healthz", nil)
	require.NoError(t, err, "Failed to create request")

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(s.healthzHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "Handler returned wrong status code")
	assert.StringContains(t, "*prometheus.okService: OK", rr.Body.String())
}

func TestHealthz_NotOK(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&failingService{}))
	s := NewService("" /*addr*/, registry)

	req, err := http.NewRequest("GET", "/healthz", nil)
	require.NoError(t, err, "Failed to create request")

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(s.healthzHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code, "Handler returned wrong status code")
	assert.StringContains(t, "*prometheus.failingService: ERROR I am failing. Do not trust me!", rr.Body.String())
}

func TestService_AdditionalHandlers(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	called := false
	s := NewService("", registry, Handler{
		Path: "/db/backup",
		Handler: func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		},
	})

	req, err := http.NewRequest("GET", "/db/backup", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, called, "additional handler was not invoked")
}
