package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"faqd/internal/synth"
)

type fakeAnswerer struct {
	response synth.Response
	err      error
	question string
}

func (f *fakeAnswerer) Answer(ctx context.Context, question string) (synth.Response, error) {
	f.question = question
	return f.response, f.err
}

func postQuery(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/faq/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQueryOK(t *testing.T) {
	answerer := &fakeAnswerer{
		response: synth.Response{
			Answer:         "3-5 business days.",
			ThoughtProcess: []string{"found shipping passage"},
			EnoughContext:  true,
		},
	}
	handler := NewHandler(answerer)

	rec := postQuery(t, handler, `{"question":"How long does shipping take?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if answerer.question != "How long does shipping take?" {
		t.Errorf("pipeline received question %q", answerer.question)
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Answer != "3-5 business days." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if !resp.EnoughContext {
		t.Error("enough_context = false, want true")
	}
}

func TestQueryNilThoughtsEncodeAsEmptyArray(t *testing.T) {
	handler := NewHandler(&fakeAnswerer{response: synth.Response{Answer: "ok"}})

	rec := postQuery(t, handler, `{"question":"q"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"thought_process":[]`) {
		t.Errorf("body = %s, want empty thought_process array", rec.Body.String())
	}
}

func TestQueryBadBody(t *testing.T) {
	handler := NewHandler(&fakeAnswerer{})

	rec := postQuery(t, handler, `{"question":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["detail"] == "" {
		t.Error(`error body has no "detail" field`)
	}
}

func TestQueryPipelineFailure(t *testing.T) {
	handler := NewHandler(&fakeAnswerer{err: errors.New("database failure: searching")})

	rec := postQuery(t, handler, `{"question":"q"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if !strings.Contains(body["detail"], "database failure") {
		t.Errorf("detail = %q", body["detail"])
	}
}

func TestIndexServesForm(t *testing.T) {
	handler := NewHandler(&fakeAnswerer{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), "<form") {
		t.Error("index page has no form")
	}
}

func TestHealth(t *testing.T) {
	handler := NewHandler(&fakeAnswerer{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
