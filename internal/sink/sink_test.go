package sink

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rlaau/swapsentry/shared/domain"
)

func TestAppendSwap_SucceedsOn2xx(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.AppendSwap(t.Context(), domain.SwapEvent{Signature: "sig1"}); err != nil {
		t.Fatalf("AppendSwap: %v", err)
	}
	if gotPath != "/append_swap" {
		t.Fatalf("path = %q, want /append_swap", gotPath)
	}
}

func TestAppendAlert_FailsOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.AppendAlert(t.Context(), map[string]string{"x": "y"}); err == nil {
		t.Fatalf("AppendAlert should fail on 500")
	}
}
