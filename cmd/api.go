package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendocasa/omi-cli/internal/coeff"
	"github.com/vendocasa/omi-cli/internal/omi"
	"github.com/vendocasa/omi-cli/internal/valuation"
)

// valuationService is the valuation surface the API consumes.
type valuationService interface {
	Valuate(ctx context.Context, req valuation.Request) (*valuation.Result, error)
	EnhancedValuate(ctx context.Context, req valuation.EnhancedRequest) (*valuation.EnhancedResult, error)
}

// zoneStore is the store surface the API consumes. *omi.Store satisfies it.
type zoneStore interface {
	FindZone(ctx context.Context, lat, lng float64, semester string) (*omi.ZoneMatch, error)
	QuotationsForZone(ctx context.Context, linkZona, semester string) ([]omi.Quotation, error)
	LatestSemester(ctx context.Context) (string, error)
	ListSemesters(ctx context.Context) ([]string, error)
	ZonesGeoJSON(ctx context.Context, semester string, bbox *omi.BBox) (*omi.GeoJSONCollection, error)
	CreateTransaction(ctx context.Context, t *omi.Transaction) error
	ListTransactions(ctx context.Context, filter omi.TransactionFilter) ([]omi.Transaction, error)
	UpdateTransaction(ctx context.Context, id int, upd omi.TransactionUpdate) error
	DeleteTransaction(ctx context.Context, id int) error
}

type apiServer struct {
	svc   valuationService
	store zoneStore
	table *coeff.Table
}

// newRouter assembles the API routes with request-ID, access-log,
// recovery and CORS middleware.
func newRouter(s *apiServer, corsOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/valuate", s.handleValuate)
		r.Post("/valuate/enhanced", s.handleEnhancedValuate)
		r.Get("/coefficients", s.handleCoefficients)
		r.Get("/semesters", s.handleSemesters)
		r.Get("/zones/by-coordinates", s.handleZoneByCoordinates)
		r.Get("/zones/geojson", s.handleZonesGeoJSON)
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Put("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})
	})

	return r
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("component", "api"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", ww.Header().Get("X-Request-Id")))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.String("component", "api"), zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps pipeline errors onto HTTP statuses: validation
// 400, not-found family 404, anything else is an upstream dependency
// failure.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case valuation.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case valuation.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		zap.L().Error("valuation failed", zap.String("component", "api"), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream dependency failed")
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleValuate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := valuation.Request{
		Address:  q.Get("address"),
		Semester: q.Get("semester"),
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if v := q.Get("surface"); v != "" {
		surface, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "surface must be a number")
			return
		}
		req.SurfaceM2 = surface
	}
	if v := q.Get("property_type"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "property_type must be an integer")
			return
		}
		req.PropertyTypeCode = code
	}

	result, err := s.svc.Valuate(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleEnhancedValuate(w http.ResponseWriter, r *http.Request) {
	var req valuation.EnhancedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.svc.EnhancedValuate(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleCoefficients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.table.Options())
}

func (s *apiServer) handleSemesters(w http.ResponseWriter, r *http.Request) {
	semesters, err := s.store.ListSemesters(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	latest := ""
	if len(semesters) > 0 {
		latest = semesters[0]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"semesters": semesters,
		"latest":    latest,
	})
}

func (s *apiServer) handleZoneByCoordinates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}

	semester := q.Get("semester")
	if semester == "" {
		var err error
		semester, err = s.store.LatestSemester(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if semester == "" {
			writeError(w, http.StatusNotFound, "no zone data imported")
			return
		}
	} else if !omi.ValidSemester(semester) {
		writeError(w, http.StatusBadRequest, "semester must look like YYYY_S1 or YYYY_S2")
		return
	}

	match, err := s.store.FindZone(r.Context(), lat, lng, semester)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if match == nil {
		writeError(w, http.StatusNotFound, "no OMI zone at coordinates")
		return
	}

	quotations, err := s.store.QuotationsForZone(r.Context(), match.LinkZona, semester)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"zone":       match,
		"semester":   semester,
		"quotations": quotations,
	})
}

func (s *apiServer) handleZonesGeoJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	semester := q.Get("semester")
	if semester == "" {
		var err error
		semester, err = s.store.LatestSemester(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if semester == "" {
			writeError(w, http.StatusNotFound, "no zone data imported")
			return
		}
	}

	var bbox *omi.BBox
	if v := q.Get("bbox"); v != "" {
		parsed, err := parseBBox(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bbox must be minLng,minLat,maxLng,maxLat")
			return
		}
		bbox = parsed
	}

	collection, err := s.store.ZonesGeoJSON(r.Context(), semester, bbox)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collection)
}

func parseBBox(s string) (*omi.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.New("bbox needs 4 values")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &omi.BBox{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}, nil
}

// transactionRequest mirrors omi.Transaction with a plain date string, so
// clients can post "2024-05-01" instead of a full timestamp.
type transactionRequest struct {
	Date              string   `json:"transaction_date"`
	Type              string   `json:"transaction_type"`
	DeclaredPrice     *float64 `json:"declared_price"`
	Municipality      string   `json:"municipality"`
	OMIZone           string   `json:"omi_zone"`
	LinkZona          string   `json:"link_zona"`
	CadastralCategory string   `json:"cadastral_category"`
	CadastralVani     *float64 `json:"cadastral_vani"`
	CadastralMq       *float64 `json:"cadastral_mq"`
	CadastralMc       *float64 `json:"cadastral_mc"`
	Notes             string   `json:"notes"`
}

func (s *apiServer) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	transactions, err := s.store.ListTransactions(r.Context(), omi.TransactionFilter{
		LinkZona:     q.Get("link_zona"),
		Municipality: q.Get("municipality"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (s *apiServer) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeclaredPrice == nil || *req.DeclaredPrice <= 0 {
		writeError(w, http.StatusBadRequest, "declared_price must be a positive number")
		return
	}

	t := omi.Transaction{
		Type:              req.Type,
		DeclaredPrice:     req.DeclaredPrice,
		Municipality:      req.Municipality,
		OMIZone:           req.OMIZone,
		LinkZona:          req.LinkZona,
		CadastralCategory: req.CadastralCategory,
		CadastralVani:     req.CadastralVani,
		CadastralMq:       req.CadastralMq,
		CadastralMc:       req.CadastralMc,
		Notes:             req.Notes,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "transaction_date must be YYYY-MM-DD")
			return
		}
		t.Date = &date
	}

	if err := s.store.CreateTransaction(r.Context(), &t); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *apiServer) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	var upd omi.TransactionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch err := s.store.UpdateTransaction(r.Context(), id, upd); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "updated": true})
	case errors.Is(err, omi.ErrNoFields):
		writeError(w, http.StatusBadRequest, "no fields to update")
	case errors.Is(err, omi.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	default:
		writeServiceError(w, err)
	}
}

func (s *apiServer) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	switch err := s.store.DeleteTransaction(r.Context(), id); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
	case errors.Is(err, omi.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	default:
		writeServiceError(w, err)
	}
}
