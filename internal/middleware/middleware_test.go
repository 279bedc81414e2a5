package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	router := chi.NewRouter()
	router.Use(Recovery(log))
	router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("detector exploded")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "detector exploded")
}

func TestRequestLoggerAttachesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	router := chi.NewRouter()
	router.Use(RequestLogger(log))
	router.Get("/api/v1/events/{candidate_id}/{interview_id}", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/c1/i1", nil))

	out := buf.String()
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, out, "inside handler")
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"route":"/api/v1/events/{candidate_id}/{interview_id}"`)
}
