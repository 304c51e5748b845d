package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/botchat/internal/routing"
	"github.com/nextlevelbuilder/botchat/internal/store"
)

// UserIDHeader carries the acting user's id on every API call.
const UserIDHeader = "X-Botchat-User-Id"

const maxBodyBytes = 1 << 20

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.Warn("http: request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, routing.ErrBotNotFound):
		return http.StatusNotFound
	case errors.Is(err, routing.ErrBotNotConfigured),
		errors.Is(err, routing.ErrInvalidModel),
		errors.Is(err, routing.ErrInvalidInput),
		errors.Is(err, routing.ErrSelfRemoval):
		return http.StatusBadRequest
	case errors.Is(err, routing.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, routing.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, routing.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if v, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// authMiddleware checks the gateway token when one is configured and puts
// the caller's user id, if any, into the request context.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" && extractBearerToken(r) != token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if raw := r.Header.Get(UserIDHeader); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + UserIDHeader})
				return
			}
			r = r.WithContext(store.WithUserID(r.Context(), id))
		}
		next(w, r)
	}
}

// requireActor returns the caller's user id or writes a 400.
func requireActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id := store.UserIDFromContext(r.Context())
	if id == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": UserIDHeader + " header required"})
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a {name} path segment as a UUID or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
