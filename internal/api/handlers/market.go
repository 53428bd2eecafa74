package handlers

import (
	"errors"
	"net/http"

	"github.com/ndewijer/strategy-index-backend/internal/api/response"
	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
	"github.com/ndewijer/strategy-index-backend/internal/catalog"
	"github.com/ndewijer/strategy-index-backend/internal/model"
	"github.com/ndewijer/strategy-index-backend/internal/service"
)

// MarketHandler handles market performance HTTP requests.
type MarketHandler struct {
	performanceService *service.PerformanceService
	catalog            *catalog.Catalog
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(performanceService *service.PerformanceService, cat *catalog.Catalog) *MarketHandler {
	return &MarketHandler{
		performanceService: performanceService,
		catalog:            cat,
	}
}

// Performance handles GET requests for the aggregate index of an ecosystem.
//
// Endpoint: GET /api/market-performance
// Query parameters:
//   - range: YTD, 1Y, 2Y or 3Y (default YTD)
//   - ecosystem: ai or robotics (default ai)
//
// Response: 200 OK with model.AggregateResult
// Error: 400 Bad Request for an unknown range or ecosystem
// Error: 500 Internal Server Error if the aggregate cannot be built
func (h *MarketHandler) Performance(w http.ResponseWriter, r *http.Request) {
	rng, eco, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	result, err := h.performanceService.GetAggregatePerformance(r.Context(), rng, eco)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidRange) || errors.Is(err, apperrors.ErrUnknownEcosystem) {
			response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToGetPerformance.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// TickersResponse lists the universe of one ecosystem.
type TickersResponse struct {
	Ecosystem catalog.Ecosystem `json:"ecosystem"`
	Tickers   []catalog.Entry   `json:"tickers"`
}

// Tickers handles GET requests for the symbols tracked in an ecosystem.
//
// Endpoint: GET /api/market-performance/tickers
// Query parameters:
//   - ecosystem: ai or robotics (default ai)
//
// Response: 200 OK with TickersResponse
// Error: 400 Bad Request for an unknown ecosystem
func (h *MarketHandler) Tickers(w http.ResponseWriter, r *http.Request) {
	eco, err := h.ecosystem(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	entries, err := h.catalog.Entries(eco)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	response.RespondJSON(w, http.StatusOK, TickersResponse{
		Ecosystem: eco,
		Tickers:   entries,
	})
}

func (h *MarketHandler) parseQuery(w http.ResponseWriter, r *http.Request) (model.TimeRange, catalog.Ecosystem, bool) {
	rng := model.DefaultRange
	if raw := r.URL.Query().Get("range"); raw != "" {
		parsed, err := model.ParseTimeRange(raw)
		if err != nil {
			response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
			return "", "", false
		}
		rng = parsed
	}

	eco, err := h.ecosystem(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return "", "", false
	}

	return rng, eco, true
}

func (h *MarketHandler) ecosystem(r *http.Request) (catalog.Ecosystem, error) {
	raw := r.URL.Query().Get("ecosystem")
	if raw == "" {
		return catalog.DefaultEcosystem, nil
	}
	return h.catalog.ParseEcosystem(raw)
}
