package httpapi

import (
	"net/http"
	"time"

	"github.com/nimbuswallet/walletauth"
	"github.com/nimbuswallet/walletauth/identity"
)

type startPhoneLoginRequest struct {
	Phone string `json:"phone"`
}

type loginStartResponse struct {
	SessionID string    `json:"session_id"`
	Step      string    `json:"step"`
	Channel   string    `json:"channel,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleStartPhoneLogin(w http.ResponseWriter, r *http.Request) {
	var req startPhoneLoginRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	start, err := s.engine.StartPhoneLogin(r.Context(), req.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, loginStartResponse{
		SessionID: start.SessionID,
		Step:      start.Step,
		Channel:   start.Channel,
		ExpiresAt: start.ExpiresAt,
	})
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

type stepResponse struct {
	SessionID string `json:"session_id"`
	Step      string `json:"step"`
	Channel   string `json:"channel,omitempty"`
}

func (s *Server) handleVerifyPhoneOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	step, err := s.engine.VerifyPhoneOTP(r.Context(), req.SessionID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stepResponse{SessionID: step.SessionID, Step: step.Step})
}

type startEmailLoginRequest struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
}

func (s *Server) handleStartEmailLogin(w http.ResponseWriter, r *http.Request) {
	var req startEmailLoginRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	step, err := s.engine.StartEmailLogin(r.Context(), req.SessionID, req.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stepResponse{SessionID: step.SessionID, Step: step.Step, Channel: step.Channel})
}

func (s *Server) handleVerifyEmailOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	step, err := s.engine.VerifyEmailOTP(r.Context(), req.SessionID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stepResponse{SessionID: step.SessionID, Step: step.Step})
}

type completeLoginRequest struct {
	SessionID string `json:"session_id"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SessionID    string    `json:"session_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type completeLoginResponse struct {
	UserID        string        `json:"user_id"`
	Phone         string        `json:"phone"`
	Email         string        `json:"email"`
	IsNewIdentity bool          `json:"is_new_identity"`
	Token         tokenResponse `json:"token"`
}

func (s *Server) handleCompleteLogin(w http.ResponseWriter, r *http.Request) {
	var req completeLoginRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	done, err := s.engine.CompleteLogin(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, completeLoginResponse{
		UserID:        done.Identity.UserID,
		Phone:         done.Identity.Phone,
		Email:         done.Identity.Email,
		IsNewIdentity: done.IsNewIdentity,
		Token:         tokenFromCore(done.Token),
	})
}

type startPhoneChangeRequest struct {
	NewPhone string `json:"new_phone"`
}

func (s *Server) handleStartPhoneChange(w http.ResponseWriter, r *http.Request, userID string) {
	var req startPhoneChangeRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	start, err := s.engine.StartPhoneChange(r.Context(), userID, req.NewPhone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, loginStartResponse{
		SessionID: start.SessionID,
		Step:      start.Step,
		Channel:   start.Channel,
		ExpiresAt: start.ExpiresAt,
	})
}

func (s *Server) handleVerifyCurrentPhone(w http.ResponseWriter, r *http.Request, userID string) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	step, err := s.engine.VerifyCurrentPhoneOTP(r.Context(), userID, req.SessionID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stepResponse{SessionID: step.SessionID, Step: step.Step, Channel: step.Channel})
}

type phoneChangeResponse struct {
	OldPhone  string    `json:"old_phone"`
	NewPhone  string    `json:"new_phone"`
	ChangedAt time.Time `json:"changed_at"`
}

func (s *Server) handleVerifyNewPhone(w http.ResponseWriter, r *http.Request, userID string) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	result, err := s.engine.VerifyNewPhoneOTP(r.Context(), userID, req.SessionID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, phoneChangeResponse{
		OldPhone:  result.OldPhone,
		NewPhone:  result.NewPhone,
		ChangedAt: result.ChangedAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	token, err := s.identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenFromCore(token))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.writeError(w, identity.ErrAccessInvalid)
		return
	}
	if err := s.identity.Revoke(r.Context(), token); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func tokenFromCore(t walletauth.Token) tokenResponse {
	return tokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		SessionID:    t.SessionID,
		ExpiresAt:    t.ExpiresAt,
	}
}
