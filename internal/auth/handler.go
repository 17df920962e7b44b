package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fileversion/service/internal/response"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type loginRequest struct {
	Username string `json:"username" example:"Alikhan"`
	UserID   int64  `json:"userId"   example:"1"`
}

type loginData struct {
	AccessToken string `json:"access_token" example:"eyJhbGci..."`
}

// Login godoc
//
//	@Summary		Issue an access token
//	@Description	Returns a bearer token for the given user. The token is required by the private file endpoints.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"User name and id"
//	@Success		201		{object}	response.Envelope{data=loginData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		response.BadRequest(w, "username is required")
		return
	}
	if req.UserID <= 0 {
		response.BadRequest(w, "userId must be a positive number")
		return
	}

	token, err := h.svc.IssueToken(req.UserID, req.Username)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", req.UserID).Msg("issue token")
		response.InternalError(w)
		return
	}

	response.Created(w, loginData{AccessToken: token})
}
