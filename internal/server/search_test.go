package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sievedocs/sieve/models"
)

type stubSearcher struct {
	lastReq models.SearchRequest
	resp    *models.SearchResponse
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func newSearchEcho(svc Searcher, secret []byte) *echo.Echo {
	e := echo.New()
	h := &SearchHandler{Svc: svc}
	h.Register(e.Group("/api/search"), secret)
	return e
}

func TestSearchHandlerOK(t *testing.T) {
	svc := &stubSearcher{resp: &models.SearchResponse{
		Results:   []models.OptimizedResult{{ID: "p1", Title: "Authentication"}},
		Total:     1,
		SessionID: "s1",
	}}
	e := newSearchEcho(svc, nil)

	body, _ := json.Marshal(models.SearchRequest{Query: "auth middleware", SourceIDs: []string{"src-next"}})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var got models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != "s1" || len(got.Results) != 1 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if svc.lastReq.Query != "auth middleware" {
		t.Fatalf("request not forwarded: %+v", svc.lastReq)
	}
}

func TestSearchHandlerInvalidInputIs400(t *testing.T) {
	svc := &stubSearcher{err: models.ErrInvalidQuery}
	e := newSearchEcho(svc, nil)

	body, _ := json.Marshal(models.SearchRequest{Query: "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchHandlerRequiresToken(t *testing.T) {
	secret := []byte("test-secret")
	svc := &stubSearcher{resp: &models.SearchResponse{SessionID: "s1"}}
	e := newSearchEcho(svc, secret)

	body, _ := json.Marshal(models.SearchRequest{Query: "auth middleware", SourceIDs: []string{"src-next"}})

	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	tok, err := SignJWT("user-7", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastReq.UserID != "user-7" {
		t.Fatalf("user id not taken from token: %q", svc.lastReq.UserID)
	}
}

func TestSearchHandlerRejectsBadToken(t *testing.T) {
	secret := []byte("test-secret")
	e := newSearchEcho(&stubSearcher{}, secret)

	body, _ := json.Marshal(models.SearchRequest{Query: "auth", SourceIDs: []string{"s"}})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
