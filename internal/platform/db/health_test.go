package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestGetPoolStats_NilPool(t *testing.T) {
	if stats := GetPoolStats(nil); stats != nil {
		t.Errorf("expected nil stats for nil pool, got %+v", stats)
	}
}

type fakeStore struct{ err error }

func (f fakeStore) Ping(context.Context) error { return f.err }
func (f fakeStore) Backend() string            { return "memory" }

func TestStatusReporter_Check(t *testing.T) {
	tests := []struct {
		name      string
		store     fakeStore
		degraded  bool
		status    string
		connected bool
	}{
		{"healthy", fakeStore{}, false, "ok", true},
		{"unreachable", fakeStore{err: errors.New("dial tcp: refused")}, false, "degraded", false},
		{"recovered but last read offline", fakeStore{}, true, "degraded", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStatusReporter(tt.store, nil, func() bool { return tt.degraded })
			st := r.Check(context.Background(), true)
			if st.Status != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, st.Status)
			}
			if st.Connected != tt.connected {
				t.Errorf("expected connected=%v, got %v", tt.connected, st.Connected)
			}
			if st.Offline != tt.degraded {
				t.Errorf("expected offline=%v, got %v", tt.degraded, st.Offline)
			}
			if st.Backend != "memory" {
				t.Errorf("expected backend memory, got %s", st.Backend)
			}
			if st.Pool != nil {
				t.Error("expected no pool stats without a pool")
			}
		})
	}
}

func TestStatusReporter_Handler(t *testing.T) {
	const detail = `failed to connect to host=db.internal user=clinic database=agenda: dial tcp: timeout`
	tests := []struct {
		name  string
		admin bool
		want  string
	}{
		{"public hides ping error", false, ""},
		{"admin sees ping error", true, detail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()

			r := NewStatusReporter(fakeStore{err: errors.New(detail)}, nil, nil)
			if err := r.Handler(tt.admin)(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var st Status
			if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if st.Status != "degraded" || st.Connected {
				t.Errorf("unexpected status %+v", st)
			}
			if st.Error != tt.want {
				t.Errorf("expected error %q, got %q", tt.want, st.Error)
			}
			if !tt.admin && strings.Contains(rec.Body.String(), "db.internal") {
				t.Errorf("public body leaks connection detail: %s", rec.Body.String())
			}
		})
	}
}
