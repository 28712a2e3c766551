package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext("/"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(newContext("/?limit=10&offset=30"))
	if p.Limit != 10 || p.Offset != 30 {
		t.Errorf("expected limit 10 offset 30, got %+v", p)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	p := FromContext(newContext("/?limit=5000&offset=-4"))
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset clamped to 0, got %d", p.Offset)
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	r := Page(items, Params{Limit: 2, Offset: 2})
	if len(r.Data) != 2 || r.Data[0] != 3 || r.Data[1] != 4 {
		t.Errorf("unexpected page data: %v", r.Data)
	}
	if r.Total != 5 || !r.HasMore {
		t.Errorf("expected total 5 with more, got %+v", r)
	}

	r = Page(items, Params{Limit: 2, Offset: 4})
	if len(r.Data) != 1 || r.HasMore {
		t.Errorf("expected last page of one item, got %+v", r)
	}

	r = Page(items, Params{Limit: 2, Offset: 10})
	if r.Data == nil || len(r.Data) != 0 {
		t.Errorf("expected empty non-nil data past the end, got %#v", r.Data)
	}
}
