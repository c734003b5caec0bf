package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/julienschmidt/httprouter"
)

type createUserRequest struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
}

type createUserResponse struct {
	UID      uuid.UUID `json:"uid"`
	Nickname string    `json:"nickname"`
	Token    string    `json:"token"`
}

// CreateUserHandler reserves a nickname and issues an identity token. With
// no nickname in the body one is generated.
//
// Request payload:
//
//	{
//	  "nickname": "SudokuFan",
//	  "email": "someone@example.com"
//	}
//
// The token is also sent via the auth_token cookie.
func (s *APIServer) CreateUserHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, apperr.ErrInvalidArgument)
		return
	}

	ctx := r.Context()
	nickname := req.Nickname
	if nickname == "" {
		generated, err := s.Identity.GenerateUniqueNickname(ctx)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		nickname = generated
	}

	id, err := s.Identity.ReserveNickname(ctx, nickname, req.Email)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	token, err := s.Issuer.CreateJWT(id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	setAuthCookie(w, token)
	writeJSON(w, http.StatusCreated, createUserResponse{UID: id.UID, Nickname: id.Nickname, Token: token})
}

// MeHandler returns the caller's profile.
func (s *APIServer) MeHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, err := authenticate(s.Issuer, r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	p, err := s.Identity.LookupProfile(r.Context(), id.UID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// StatsHandler returns games played and won for a user.
func (s *APIServer) StatsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	uid, err := uuid.Parse(ps.ByName("uid"))
	if err != nil {
		writeError(w, s.logger, apperr.ErrInvalidArgument)
		return
	}
	st, err := s.Stats.Get(r.Context(), uid)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
