// Package httpapi exposes the relay's HTTP surface: pairing routes, the
// entity mutation/read APIs, the bot ingress route, and the live-channel
// upgrade endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pocketdesk/pocketdesk/internal/common"
	"github.com/pocketdesk/pocketdesk/internal/event"
	"github.com/pocketdesk/pocketdesk/internal/logging"
	"github.com/pocketdesk/pocketdesk/internal/relay/apikeys"
	"github.com/pocketdesk/pocketdesk/internal/relay/events"
	"github.com/pocketdesk/pocketdesk/internal/relay/models"
	"github.com/pocketdesk/pocketdesk/internal/relay/pairing"
	"github.com/pocketdesk/pocketdesk/internal/relay/repositories/entities"
)

const maxBodyBytes = 1 << 20

// Server handles the relay's HTTP routes.
type Server struct {
	pairing  *pairing.Service
	log      *events.Log
	hub      http.Handler
	apikeys  *apikeys.Service
	entities entities.Repository
	logger   logging.Logger
	mux      *http.ServeMux
}

// NewServer wires the routes. hub may be nil when the live channel is not
// served (tests).
func NewServer(ps *pairing.Service, log *events.Log, hub http.Handler, ak *apikeys.Service, er entities.Repository, logger logging.Logger) *Server {
	s := &Server{
		pairing:  ps,
		log:      log,
		hub:      hub,
		apikeys:  ak,
		entities: er,
		logger:   logger.With("module", "http_api"),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.mux.HandleFunc("POST /pair/generate", s.handlePairGenerate)
	s.mux.HandleFunc("POST /pair/verify", s.handlePairVerify)
	s.mux.HandleFunc("POST /pair/unpair", s.handlePairUnpair)
	s.mux.HandleFunc("POST /pair/recover", s.handlePairRecover)
	s.mux.HandleFunc("POST /pair/devices", s.handleDeviceRegister)
	s.mux.HandleFunc("GET /pair/devices", s.handleDeviceList)
	s.mux.HandleFunc("PATCH /pair/devices/{id}", s.handleDeviceUpdate)

	for _, entityType := range models.EntityTypes {
		base := "/api/v1/" + entityType + "s"
		et := entityType
		s.mux.HandleFunc("GET "+base, s.withAPIKey(func(w http.ResponseWriter, r *http.Request, u *models.User) {
			s.handleEntityList(w, r, u, et)
		}))
		s.mux.HandleFunc("POST "+base, s.withAPIKey(func(w http.ResponseWriter, r *http.Request, u *models.User) {
			s.handleEntityCreate(w, r, u, et)
		}))
		s.mux.HandleFunc("PATCH "+base+"/{id}", s.withAPIKey(func(w http.ResponseWriter, r *http.Request, u *models.User) {
			s.handleEntityUpdate(w, r, u, et)
		}))
		s.mux.HandleFunc("DELETE "+base+"/{id}", s.withAPIKey(func(w http.ResponseWriter, r *http.Request, u *models.User) {
			s.handleEntityDelete(w, r, u, et)
		}))
	}

	s.mux.HandleFunc("POST /bot/events", s.withAPIKey(s.handleBotEvent))

	if s.hub != nil {
		s.mux.Handle("GET /ws", s.hub)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	s.mux.ServeHTTP(w, r)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "starting HTTP server", "address", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withAPIKey authenticates the X-Api-Key header and passes the resolved
// user to the handler.
func (s *Server) withAPIKey(next func(http.ResponseWriter, *http.Request, *models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.apikeys.Authenticate(r.Context(), r.Header.Get(common.APIKeyHeaderName))
		if err != nil {
			if errors.Is(err, common.ErrorUnauthorized) {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			s.logger.Error(r.Context(), "api key authentication failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next(w, r, user)
	}
}

// ---- pairing routes ----

func (s *Server) handlePairGenerate(w http.ResponseWriter, r *http.Request) {
	user, err := s.apikeys.Authenticate(r.Context(), r.Header.Get(common.APIKeyHeaderName))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID != "" && req.UserID != user.ID {
		writeError(w, http.StatusForbidden, "userId does not match API key")
		return
	}

	code, err := s.pairing.GenerateCode(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "too many pairing codes, try again later")
			return
		}
		s.logger.Error(r.Context(), "pairing code generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":      code.Code,
		"expiresAt": code.ExpiresAt,
	})
}

func (s *Server) handlePairVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.pairing.RedeemCode(r.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidCode):
			writeError(w, http.StatusBadRequest, "invalid pairing code")
		case errors.Is(err, common.ErrCodeExpired):
			writeError(w, http.StatusBadRequest, "pairing code expired")
		case errors.Is(err, common.ErrCodeAlreadyUsed):
			writeError(w, http.StatusBadRequest, "pairing code already used")
		default:
			s.logger.Error(r.Context(), "pairing verification failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionToken": result.Token,
		"deviceId":     result.DeviceID,
		"userId":       result.UserID,
		"expiresAt":    result.ExpiresAt,
	})
}

func (s *Server) handlePairUnpair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionToken string `json:"sessionToken"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SessionToken == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.pairing.Unpair(r.Context(), req.SessionToken); err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		s.logger.Error(r.Context(), "unpair failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePairRecover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
		UserID   string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DeviceID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.pairing.RecoverSession(r.Context(), req.DeviceID, req.UserID)
	if err != nil {
		if errors.Is(err, common.ErrDeviceNotRegistered) {
			writeError(w, http.StatusNotFound, "device not registered")
			return
		}
		s.logger.Error(r.Context(), "session recovery failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionToken": result.Token,
		"expiresAt":    result.ExpiresAt,
	})
}

func (s *Server) handleDeviceRegister(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(common.SessionTokenHeaderName)

	var req struct {
		DeviceID string `json:"deviceId"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.pairing.RegisterDevice(r.Context(), token, req.DeviceID, req.Name); err != nil {
		s.writeAuthOrInternal(w, r, err, "device registration failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(common.SessionTokenHeaderName)

	list, err := s.pairing.ListDevices(r.Context(), token)
	if err != nil {
		s.writeAuthOrInternal(w, r, err, "device listing failed")
		return
	}

	items := make([]map[string]any, 0, len(list))
	for _, d := range list {
		items = append(items, map[string]any{
			"deviceId":  d.DeviceID,
			"name":      d.Name,
			"enabled":   d.Enabled,
			"lastSeen":  d.LastSeen,
			"createdAt": d.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

func (s *Server) handleDeviceUpdate(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(common.SessionTokenHeaderName)
	deviceID := r.PathValue("id")

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.pairing.SetDeviceEnabled(r.Context(), token, deviceID, *req.Enabled); err != nil {
		if errors.Is(err, common.ErrDeviceNotRegistered) {
			writeError(w, http.StatusNotFound, "device not registered")
			return
		}
		s.writeAuthOrInternal(w, r, err, "device update failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- entity routes ----

func (s *Server) handleEntityCreate(w http.ResponseWriter, r *http.Request, u *models.User, entityType string) {
	doc, id, err := readEntityDoc(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.entities.Upsert(r.Context(), &models.Entity{
		ID:         id,
		UserID:     u.ID,
		EntityType: entityType,
		Data:       doc,
		UpdatedAt:  time.Now(),
	}); err != nil {
		s.logger.Error(r.Context(), "entity upsert failed", "entity_type", entityType, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (s *Server) handleEntityUpdate(w http.ResponseWriter, r *http.Request, u *models.User, entityType string) {
	id := r.PathValue("id")

	doc, bodyID, err := readEntityDoc(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if bodyID != id {
		writeError(w, http.StatusBadRequest, "body id does not match path id")
		return
	}

	if err := s.entities.Upsert(r.Context(), &models.Entity{
		ID:         id,
		UserID:     u.ID,
		EntityType: entityType,
		Data:       doc,
		UpdatedAt:  time.Now(),
	}); err != nil {
		s.logger.Error(r.Context(), "entity upsert failed", "entity_type", entityType, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleEntityDelete(w http.ResponseWriter, r *http.Request, u *models.User, entityType string) {
	id := r.PathValue("id")

	if err := s.entities.Delete(r.Context(), u.ID, entityType, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.logger.Error(r.Context(), "entity delete failed", "entity_type", entityType, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleEntityList(w http.ResponseWriter, r *http.Request, u *models.User, entityType string) {
	list, err := s.entities.ListByUser(r.Context(), u.ID, entityType)
	if err != nil {
		s.logger.Error(r.Context(), "entity listing failed", "entity_type", entityType, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	data := make([]json.RawMessage, 0, len(list))
	for _, e := range list {
		data = append(data, e.Data)
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// ---- bot ingress ----

func (s *Server) handleBotEvent(w http.ResponseWriter, r *http.Request, u *models.User) {
	var req struct {
		EventType string          `json:"eventType"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !event.KnownType(req.EventType) {
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	eventID, online, err := s.log.Publish(r.Context(), u.ID, req.EventType, req.Payload)
	if err != nil {
		s.logger.Error(r.Context(), "event publish failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"eventId": eventID,
		"online":  online,
	})
}

// ---- helpers ----

func (s *Server) writeAuthOrInternal(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, common.ErrInvalidToken) || errors.Is(err, common.ErrSessionExpired) {
		writeError(w, http.StatusUnauthorized, "invalid or expired session token")
		return
	}
	s.logger.Error(r.Context(), msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// readEntityDoc parses the request body as a JSON document and extracts the
// mandatory "id" field.
func readEntityDoc(r *http.Request) (json.RawMessage, string, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading body")
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, "", fmt.Errorf("invalid JSON body")
	}
	if probe.ID == "" {
		return nil, "", fmt.Errorf("missing id field")
	}
	return body, probe.ID, nil
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
