package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreamLines(t *testing.T) {
	lines := make(chan string, 2)
	lines <- "tof 900 2.00 2"
	lines <- "tof 901 2.10 0"
	close(lines)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/tail", nil)
	StreamLines(rec, req, lines)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, ": ping\n\ndata: tof 900 2.00 2\n\ndata: tof 901 2.10 0\n\n", rec.Body.String())
}

func TestStreamLines_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/debug/tail", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		StreamLines(rec, req, make(chan string))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StreamLines did not return after cancel")
	}
}

func TestStreamLines_RejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	StreamLines(rec, httptest.NewRequest(http.MethodPost, "/debug/tail", nil), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
