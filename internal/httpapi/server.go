package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sio2000/gymUI-sub000/internal/auth"
	"github.com/sio2000/gymUI-sub000/internal/checkin/service"
	"github.com/sio2000/gymUI-sub000/internal/checkin/types"
)

type Dependencies struct {
	Logger         *zap.Logger
	Addr           string
	CheckinService *service.CheckinService

	// Auth guards the /v1 routes.  Nil disables operator auth.
	Auth *auth.Authenticator
	// Ping backs /healthz.  Nil reports healthy.
	Ping func(ctx context.Context) error
}

type Server struct {
	httpServer     *http.Server
	logger         *zap.Logger
	mux            *http.ServeMux
	checkinService *service.CheckinService
	ping           func(ctx context.Context) error
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger:         logger,
		mux:            mux,
		checkinService: d.CheckinService,
		ping:           d.Ping,
	}

	mux.HandleFunc("POST /v1/scans", requireOperator(d.Auth, s.handleScan))
	mux.HandleFunc("GET /v1/stations/{station_id}/scans", requireOperator(d.Auth, s.handleRecentScans))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	handler := requestIDMiddleware(loggingMiddleware(logger, mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	useProto := isProtobuf(r)

	var req types.ScanRequest
	if useProto {
		var err error
		if req, err = readScanProto(r); err != nil {
			writeError(w, http.StatusBadRequest, "bad_protobuf", err.Error())
			return
		}
	} else {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
			return
		}
	}

	var operatorID string
	if op, ok := auth.OperatorFromContext(r.Context()); ok {
		operatorID = op.ID
	}

	resp, err := s.checkinService.Scan(r.Context(), req, operatorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStationID):
			writeError(w, http.StatusBadRequest, "invalid_station_id", err.Error())
		case errors.Is(err, service.ErrUnknownStation):
			// Unknown station is blocked from the scan flow
			s.writeScan(w, http.StatusForbidden, resp, useProto)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "cancelled", "scan abandoned before a decision")
		default:
			s.logger.Error("scan error", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	s.writeScan(w, http.StatusOK, resp, useProto)
}

func (s *Server) writeScan(w http.ResponseWriter, status int, resp types.ScanResponse, useProto bool) {
	if useProto {
		writeProto(w, status, scanResponseToProto(resp))
		return
	}
	writeJSON(w, status, resp)
}

type recentScansResponse struct {
	StationID string            `json:"station_id"`
	Scans     []types.ScanEvent `json:"scans"`
}

func (s *Server) handleRecentScans(w http.ResponseWriter, r *http.Request) {
	stationID := r.PathValue("station_id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	scans, err := s.checkinService.RecentScans(r.Context(), stationID, limit)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStationID) {
			writeError(w, http.StatusBadRequest, "invalid_station_id", err.Error())
			return
		}
		s.logger.Error("recent scans error", zap.String("station_id", stationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, recentScansResponse{StationID: stationID, Scans: scans})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
