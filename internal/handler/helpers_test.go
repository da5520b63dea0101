package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/auth"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/logging"
	"github.com/grocerydist/routeledger/internal/money"
	"github.com/jackc/pgx/v5/pgtype"
)

const testJWTSecret = "test-secret-for-handlers"

var testLogger = logging.Discard()

func ownerClaims() *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Role: enum.UserRoleOwner}
}

func managerClaims() *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Role: enum.UserRoleManager}
}

func srClaims() *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Role: enum.UserRoleSR}
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()
	return doAuthRequestWithHeaders(t, router, method, path, body, claims, nil)
}

func doAuthRequestWithHeaders(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	// Generate a real JWT token from claims
	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doRequestNoAuth(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

func numeric(s string) pgtype.Numeric {
	d, err := money.Parse(s)
	if err != nil {
		panic(err)
	}
	return money.ToNumeric(d)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// --- Recording publisher ---

type publishedEvent struct {
	RepresentativeID uuid.UUID
	Type             string
	Payload          any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

// Publish tolerates a nil receiver so setups can pass a nil recorder.
func (p *recordingPublisher) Publish(representativeID uuid.UUID, eventType string, payload any) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{RepresentativeID: representativeID, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

func assertSingleEvent(t *testing.T, p *recordingPublisher, repID uuid.UUID, eventType string) {
	t.Helper()
	events := p.published()
	if len(events) != 1 {
		t.Fatalf("events: got %d, want 1", len(events))
	}
	if events[0].Type != eventType || events[0].RepresentativeID != repID {
		t.Errorf("event: got %s to %s, want %s to %s", events[0].Type, events[0].RepresentativeID, eventType, repID)
	}
}
