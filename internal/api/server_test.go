package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/halvard/usedmarket/internal/catalog"
	"github.com/halvard/usedmarket/internal/engine"
	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/host"
	"github.com/halvard/usedmarket/internal/market"
	"github.com/halvard/usedmarket/internal/weather"
)

func testServer(balance float64) *Server {
	sess := engine.NewSession(engine.Config{
		Catalog:  catalog.Default(),
		Rng:      entropy.NewSeeded(1),
		Weather:  weather.Static(weather.Clear),
		Ledger:   host.NewMemoryLedger(map[string]float64{"player": balance}),
		Notifier: host.LogNotifier{},
		Seed:     1,
	})
	return &Server{
		Sess:     sess,
		Eng:      engine.NewEngine(),
		AdminKey: "secret",
	}
}

func TestAdminOnly(t *testing.T) {
	s := testServer(10000)
	handler := s.adminOnly(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"right token", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/speed", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAdminOnlyDisabledWithoutKey(t *testing.T) {
	s := testServer(10000)
	s.AdminKey = ""
	handler := s.adminOnly(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/v1/speed", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 when operations are disabled", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	s := testServer(10000)
	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	w := httptest.NewRecorder()
	s.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["weather"] != "clear" {
		t.Errorf("weather = %v, want clear", body["weather"])
	}
	if _, ok := body["time"]; !ok {
		t.Error("response missing time field")
	}
}

func TestHandleSearchFlow(t *testing.T) {
	s := testServer(10000)

	body := strings.NewReader(`{"requester":"player","category":"tractor_compact","quality":3,"agent":1}`)
	req := httptest.NewRequest("POST", "/api/v1/search", body)
	w := httptest.NewRecorder()
	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	// The search shows up for its requester.
	req = httptest.NewRequest("GET", "/api/v1/searches?owner=player", nil)
	w = httptest.NewRecorder()
	s.handleSearches(w, req)
	var searches []json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&searches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(searches) != 1 {
		t.Errorf("searches = %d, want 1", len(searches))
	}
}

func TestHandleSearchErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		body    string
		want    int
	}{
		{"bad json", 10000, `{"requester":`, http.StatusBadRequest},
		{"unknown category", 10000, `{"requester":"player","category":"submarine","quality":3,"agent":1}`, http.StatusBadRequest},
		{"insufficient funds", 10, `{"requester":"player","category":"plow","quality":1,"agent":1}`, http.StatusPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(tt.balance)
			req := httptest.NewRequest("POST", "/api/v1/search", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			s.handleSearch(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleOfferRaceMapsToConflict(t *testing.T) {
	s := testServer(10000)
	body := strings.NewReader(`{"listing":"gone","offerer":"player","amount":5000}`)
	req := httptest.NewRequest("POST", "/api/v1/offer", body)
	w := httptest.NewRecorder()
	s.handleOffer(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 for a vanished listing", w.Code)
	}
}

func TestHandleOfferCompletesPurchase(t *testing.T) {
	s := testServer(200000)
	l := &market.ListingRecord{
		ID:          "l1",
		CategoryID:  "tractor_compact",
		OwnerID:     "player",
		Status:      market.StatusFound,
		TTLHours:    96,
		DNA:         0.5,
		AskingPrice: 100000,
		BasePrice:   100000,
		Negotiation: market.NewNegotiationRecord(0.5),
	}
	s.Sess.Acquisition.Restore(nil, []*market.ListingRecord{l})

	body := strings.NewReader(`{"listing":"l1","offerer":"player","amount":95000}`)
	req := httptest.NewRequest("POST", "/api/v1/offer", body)
	w := httptest.NewRecorder()
	s.handleOffer(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != "accepted" {
		t.Errorf("outcome = %q, want accepted", resp.Outcome)
	}
}

func TestHandleSpeed(t *testing.T) {
	s := testServer(10000)

	req := httptest.NewRequest("POST", "/api/v1/speed", strings.NewReader(`{"speed":10}`))
	w := httptest.NewRecorder()
	s.handleSpeed(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if s.Eng.Speed != 10 {
		t.Errorf("speed = %v, want 10", s.Eng.Speed)
	}

	req = httptest.NewRequest("POST", "/api/v1/speed", strings.NewReader(`{"speed":-1}`))
	w = httptest.NewRecorder()
	s.handleSpeed(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for negative speed", w.Code)
	}
}

func TestListingsRequiresOwner(t *testing.T) {
	s := testServer(10000)
	req := httptest.NewRequest("GET", "/api/v1/listings", nil)
	w := httptest.NewRecorder()
	s.handleListings(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without owner", w.Code)
	}
}
