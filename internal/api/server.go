// Package api serves the marketplace over HTTP. GET endpoints are read-only
// observation; POST endpoints carry player operations and require a bearer
// token so only the host's UI layer can drive them.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/halvard/usedmarket/internal/acquisition"
	"github.com/halvard/usedmarket/internal/disposition"
	"github.com/halvard/usedmarket/internal/engine"
	"github.com/halvard/usedmarket/internal/inspection"
	"github.com/halvard/usedmarket/internal/market"
	"github.com/halvard/usedmarket/internal/persistence"
)

// Server serves marketplace state and operations over HTTP.
type Server struct {
	Sess     *engine.Session
	Eng      *engine.Engine
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	// A player shouldn't be able to spam a seller into the ground.
	offerLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()

	// Observation endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/listings", s.handleListings)
	mux.HandleFunc("GET /api/v1/searches", s.handleSearches)
	mux.HandleFunc("GET /api/v1/sales", s.handleSales)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/economy", s.handleEconomy)
	mux.HandleFunc("GET /api/v1/hours-remaining", s.handleHoursRemaining)

	// Operation endpoints.
	mux.HandleFunc("POST /api/v1/search", s.adminOnly(s.handleSearch))
	mux.HandleFunc("POST /api/v1/sell", s.adminOnly(s.handleSell))
	mux.HandleFunc("POST /api/v1/offer", s.adminOnly(limitBy(offerLimiter, "offerer", s.handleOffer)))
	mux.HandleFunc("POST /api/v1/buy", s.adminOnly(s.handleBuy))
	mux.HandleFunc("POST /api/v1/inspect", s.adminOnly(s.handleInspect))
	mux.HandleFunc("POST /api/v1/view", s.adminOnly(s.handleView))
	mux.HandleFunc("POST /api/v1/accept", s.adminOnly(s.handleAccept))
	mux.HandleFunc("POST /api/v1/decline", s.adminOnly(s.handleDecline))
	mux.HandleFunc("POST /api/v1/cancel-search", s.adminOnly(s.handleCancelSearch))
	mux.HandleFunc("POST /api/v1/cancel-sale", s.adminOnly(s.handleCancelSale))
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// adminOnly guards an endpoint with the bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "operations disabled", http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case market.IsValidation(err):
		status = http.StatusBadRequest
	case market.IsFunds(err):
		status = http.StatusPaymentRequired
	case market.IsRace(err):
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// ── Observation ──────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sess.Summary()
	writeJSON(w, map[string]any{
		"hour":            snap.Hour,
		"time":            snap.Time,
		"speed":           s.Eng.Speed,
		"weather":         s.Sess.Weather.Current().Name(),
		"active_searches": snap.ActiveSearches,
		"found_listings":  snap.FoundListings,
		"active_sales":    snap.ActiveSales,
		"stats":           snap.Stats,
	})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner parameter required", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Sess.ActiveListings(owner))
}

func (s *Server) handleSearches(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner parameter required", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Sess.ActiveSearches(owner))
}

func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner parameter required", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Sess.ActiveSales(owner))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	writeJSON(w, s.Sess.RecentEvents(limit))
}

func (s *Server) handleEconomy(w http.ResponseWriter, r *http.Request) {
	period := engine.Period(s.Sess.Summary().Hour)
	type categoryEntry struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		BasePrice string `json:"base_price"`
	}
	var cats []categoryEntry
	for _, id := range s.Sess.Catalog.IDs() {
		cat, _ := s.Sess.Catalog.Get(id)
		cats = append(cats, categoryEntry{
			ID:        cat.ID,
			Name:      cat.Name,
			BasePrice: humanize.CommafWithDigits(cat.BasePrice, 0),
		})
	}
	writeJSON(w, map[string]any{
		"period":     period,
		"trend":      s.Sess.Trend.Multiplier(period),
		"categories": cats,
	})
}

func (s *Server) handleHoursRemaining(w http.ResponseWriter, r *http.Request) {
	id := market.ListingID(r.URL.Query().Get("listing"))
	hours, err := s.Sess.HoursRemaining(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"listing": id, "hours_remaining": hours})
}

// ── Operations ───────────────────────────────────────────────────────────

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requester string `json:"requester"`
		Category  string `json:"category"`
		Quality   uint8  `json:"quality"`
		Agent     uint8  `json:"agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	req, err := s.Sess.RequestSearch(body.Requester, body.Category,
		market.QualityTier(body.Quality), market.AgentTier(body.Agent))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, req)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner string               `json:"owner"`
		Item  disposition.ItemSpec `json:"item"`
		Agent uint8                `json:"agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	req, err := s.Sess.ListForSale(body.Owner, body.Item, market.AgentTier(body.Agent))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, req)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Listing string  `json:"listing"`
		Offerer string  `json:"offerer"`
		Amount  float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	out, err := s.Sess.SubmitOffer(market.ListingID(body.Listing), body.Offerer, body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"outcome":       out.Kind.Name(),
		"counter_price": out.CounterPrice,
		"round":         out.Round,
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Listing string `json:"listing"`
		Buyer   string `json:"buyer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	out, err := s.Sess.Purchase(market.ListingID(body.Listing), body.Buyer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"outcome": out.Kind.Name()})
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Listing string `json:"listing"`
		Tier    uint8  `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	if err := s.Sess.RequestInspection(market.ListingID(body.Listing), inspection.Tier(body.Tier)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "inspection started"})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Listing string `json:"listing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	if err := s.Sess.MarkViewed(market.ListingID(body.Listing)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Listing string `json:"listing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	offer, err := s.Sess.AcceptOffer(market.ListingID(body.Listing))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, offer)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Listing string `json:"listing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	if err := s.Sess.DeclineOffer(market.ListingID(body.Listing)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "declined"})
}

func (s *Server) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	if err := s.Sess.CancelSearch(acquisition.SearchID(body.ID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	if err := s.Sess.CancelSale(disposition.SaleID(body.ID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, market.Validationf("bad request body: %v", err))
		return
	}
	if body.Speed < 0 || body.Speed > 1000 {
		writeError(w, market.Validationf("speed %f out of range", body.Speed))
		return
	}
	s.Eng.Speed = body.Speed
	slog.Info("speed changed", "speed", body.Speed)
	writeJSON(w, map[string]any{"speed": body.Speed})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, market.Validationf("no database configured"))
		return
	}
	var saveErr error
	s.Sess.Locked(func() {
		saveErr = s.DB.SaveState(s.Sess)
	})
	if saveErr != nil {
		writeError(w, fmt.Errorf("save failed: %w", saveErr))
		return
	}
	writeJSON(w, map[string]string{"status": "saved"})
}
