package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/botchat/internal/routing"
)

// UsersHandler serves participant endpoints: humans and bots.
type UsersHandler struct {
	svc   *routing.Service
	token string
}

func NewUsersHandler(svc *routing.Service, token string) *UsersHandler {
	return &UsersHandler{svc: svc, token: token}
}

// RegisterRoutes registers all user and bot routes on the given mux.
func (h *UsersHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/users", authMiddleware(h.token, h.handleListUsers))
	mux.HandleFunc("POST /v1/users", authMiddleware(h.token, h.handleUpsertUser))
	mux.HandleFunc("GET /v1/bots", authMiddleware(h.token, h.handleListBots))
	mux.HandleFunc("POST /v1/bots", authMiddleware(h.token, h.handleCreateBot))
}

func (h *UsersHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	humansOnly, _ := strconv.ParseBool(r.URL.Query().Get("humans_only"))
	users, err := h.svc.ListUsers(r.Context(), humansOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

type upsertUserRequest struct {
	ID             string  `json:"id" validate:"required,uuid"`
	Email          string  `json:"email" validate:"required,email"`
	Name           string  `json:"name"`
	ProfilePicture *string `json:"profile_picture"`
}

func (h *UsersHandler) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req upsertUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.UpsertUser(r.Context(), uuid.MustParse(req.ID), req.Email, req.Name, req.ProfilePicture)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UsersHandler) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := h.svc.ListBots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bots": bots})
}

type createBotRequest struct {
	Name           string  `json:"name" validate:"required"`
	Persona        string  `json:"persona" validate:"required"`
	Model          string  `json:"model"`
	ProfilePicture *string `json:"profile_picture"`
}

func (h *UsersHandler) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bot, err := h.svc.CreateBot(r.Context(), routing.CreateBotParams{
		Name:           req.Name,
		Persona:        req.Persona,
		Model:          req.Model,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}
