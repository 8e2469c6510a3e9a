package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type body struct {
	Name string `json:"name" validate:"required"`
}

func TestDecodeValidates(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))

	var b body
	if Decode(rec, req, &b) {
		t.Fatal("expected Decode to fail validation")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "name is required") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestDecodeBadJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	var b body
	if Decode(rec, req, &b) || rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&bad=x&neg=-2", nil)
	if got := IntQuery(req, "limit", 10); got != 5 {
		t.Errorf("limit: got %d", got)
	}
	if got := IntQuery(req, "bad", 10); got != 10 {
		t.Errorf("bad: got %d", got)
	}
	if got := IntQuery(req, "neg", 10); got != 10 {
		t.Errorf("neg: got %d", got)
	}
	if got := IntQuery(req, "missing", 3); got != 3 {
		t.Errorf("missing: got %d", got)
	}
}
