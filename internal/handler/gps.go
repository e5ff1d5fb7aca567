package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"roaia/internal/httputil"
	"roaia/internal/metrics"
	"roaia/internal/model"
	"roaia/internal/transport/http/middleware"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsPingInterval   = 30 * time.Second
	wsPingTimeout    = 10 * time.Second
	wsMaxInboundSize = 512
)

type gpsRelay interface {
	Publish(ctx context.Context, loc model.GPSLocation) error
	Last(ctx context.Context, glassesID string) (*model.GPSLocation, error)
	Subscribe(ctx context.Context, glassesID string) (<-chan model.GPSLocation, error)
}

type gpsRequest struct {
	GlassesID string   `json:"glasses_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// GPSHandler relays glasses positions to caretakers.
type GPSHandler struct {
	relay          gpsRelay
	originPatterns []string
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

func NewGPSHandler(relay gpsRelay, originPatterns []string, m *metrics.Metrics, logger *zap.Logger) *GPSHandler {
	return &GPSHandler{relay: relay, originPatterns: originPatterns, metrics: m, logger: logger}
}

// Ingest handles POST /api/glasses/gps from the glasses.
func (h *GPSHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req gpsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		httputil.WriteBadRequest(w, "latitude and longitude are required")
		return
	}

	loc := model.GPSLocation{GlassesID: req.GlassesID, Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := h.relay.Publish(r.Context(), loc); err != nil {
		h.metrics.GPSPosition("http", "rejected")
		writeServiceError(w, h.logger, "IngestGPS", err, "Failed to relay location")
		return
	}

	h.metrics.GPSPosition("http", "ok")
	w.WriteHeader(http.StatusAccepted)
}

// LastLocation handles GET /api/glasses/{id}/location
func (h *GPSHandler) LastLocation(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}

	loc, err := h.relay.Last(r.Context(), glassesID)
	if err != nil {
		writeServiceError(w, h.logger, "LastLocation", err, "Failed to get location")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loc)
}

// Stream upgrades to a WebSocket and pushes every position of the glasses
// until either side closes.
// GET /hubs/gps?glassesId=...
func (h *GPSHandler) Stream(w http.ResponseWriter, r *http.Request) {
	glassesID := r.URL.Query().Get("glassesId")
	if glassesID == "" {
		glassesID = chi.URLParam(r, "id")
	}
	if glassesID == "" {
		httputil.WriteBadRequest(w, "glassesId is required")
		return
	}
	if !middleware.CanAccessGlasses(r.Context(), glassesID) {
		httputil.WriteForbidden(w, "Not linked to these glasses")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("[GPSHub] Accept FAILED", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	conn.SetReadLimit(wsMaxInboundSize)

	// CloseRead drains control frames and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	updates, err := h.relay.Subscribe(ctx, glassesID)
	if err != nil {
		h.logger.Error("[GPSHub] Subscribe FAILED", zap.String("glasses_id", glassesID), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	log := h.logger.With(zap.String("glasses_id", glassesID))
	log.Info("[GPSHub] Client joined")

	if last, err := h.relay.Last(ctx, glassesID); err == nil {
		if err := writeLocation(ctx, conn, *last); err != nil {
			return
		}
	} else if !errors.Is(err, model.ErrLocationNotFound) {
		log.Warn("[GPSHub] Last location FAILED", zap.Error(err))
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[GPSHub] Client left")
			return
		case loc, ok := <-updates:
			if !ok {
				return
			}
			if err := writeLocation(ctx, conn, loc); err != nil {
				log.Info("[GPSHub] Write FAILED", zap.Int("close_status", int(websocket.CloseStatus(err))), zap.Error(err))
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Info("[GPSHub] Ping FAILED", zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func writeLocation(parent context.Context, conn *websocket.Conn, loc model.GPSLocation) error {
	ctx, cancel := context.WithTimeout(parent, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, loc)
}
