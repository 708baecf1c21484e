package handler

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"phone-auth-service/internal/apperr"
	"phone-auth-service/internal/config"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/util"
)

var otpPattern = regexp.MustCompile(`^\d{6}$`)

const minPasswordLength = 8

// AuthHandler exposes the registration, login, and password-reset flows over
// HTTP. Request validation and cookie handling live here; everything behind
// the decoded request belongs to the engines.
type AuthHandler struct {
	otp      *service.OtpService
	login    *service.LoginService
	sessions *service.SessionService
	config   *config.Config
	logger   *zap.Logger
}

func NewAuthHandler(otp *service.OtpService, login *service.LoginService,
	sessions *service.SessionService, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		otp:      otp,
		login:    login,
		sessions: sessions,
		config:   cfg,
		logger:   logger,
	}
}

// Response is the envelope for every API reply. Error carries the stable
// machine-readable code; Message is for humans.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RegisterRoutes mounts the auth endpoints on the given router.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Post("/register", h.Register)
	router.Post("/verify-otp", h.VerifyOtp)
	router.Post("/confirm-password", h.ConfirmPassword)
	router.Post("/login", h.Login)
	router.Post("/forget-password", h.ForgetPassword)
	router.Post("/verify-reset-otp", h.VerifyResetOtp)
	router.Post("/reset-password", h.ResetPassword)

	router.Group(func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Post("/logout", h.Logout)
		r.Get("/auth-check", h.AuthCheck)
	})
}

// Register starts a registration challenge for an unregistered phone.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.InvalidInput("Invalid request body"))
		return
	}
	phone, err := h.parsePhone(req.Phone)
	if err != nil {
		h.respondError(w, err)
		return
	}

	token, err := h.otp.RequestRegistration(r.Context(), phone)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "We are sending OTP to 09" + phone,
		Data:    map[string]string{"phone": phone, "token": token},
	})
}

// VerifyOtp checks the submitted registration code.
func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeChallenge(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	token, err := h.otp.VerifyRegistration(r.Context(), req.phone, req.token, req.otp)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "OTP is successfully verified",
		Data:    map[string]string{"phone": req.phone, "token": token},
	})
}

// ConfirmPassword finishes registration: it creates the account and starts
// its first session.
func (h *AuthHandler) ConfirmPassword(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeConfirm(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	session, err := h.otp.ConfirmRegistration(r.Context(), req.phone, req.token, req.password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	h.respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Successfully created an account",
		Data:    map[string]string{"userId": session.UserID},
	})
	h.logger.Info("Account created via HTTP", util.String("user_id", session.UserID))
}

// Login authenticates a phone/password pair and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.InvalidInput("Invalid request body"))
		return
	}
	phone, err := h.parsePhone(req.Phone)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if len(req.Password) < minPasswordLength {
		h.respondError(w, apperr.InvalidInput("Password must be at least 8 characters"))
		return
	}

	session, err := h.login.Login(r.Context(), phone, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Successfully logged in",
		Data:    map[string]string{"userId": session.UserID},
	})
}

// Logout revokes the current session and clears the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, apperr.Unauthenticated("You are not an authenticated user"))
		return
	}

	if err := h.sessions.Revoke(r.Context(), userID); err != nil {
		h.respondError(w, err)
		return
	}

	h.clearSessionCookies(w)
	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Successfully logged out. See you soon",
	})
}

// AuthCheck reports whether the caller holds a live session.
func (h *AuthHandler) AuthCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, apperr.Unauthenticated("You are not an authenticated user"))
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "You are authenticated",
		Data:    map[string]string{"userId": userID},
	})
}

// ForgetPassword starts a password-reset challenge for a registered phone.
func (h *AuthHandler) ForgetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.InvalidInput("Invalid request body"))
		return
	}
	phone, err := h.parsePhone(req.Phone)
	if err != nil {
		h.respondError(w, err)
		return
	}

	token, err := h.otp.RequestReset(r.Context(), phone)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "We are sending OTP to 09" + phone + " to reset password",
		Data:    map[string]string{"phone": phone, "token": token},
	})
}

// VerifyResetOtp checks the submitted reset code.
func (h *AuthHandler) VerifyResetOtp(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeChallenge(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	token, err := h.otp.VerifyReset(r.Context(), req.phone, req.token, req.otp)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "OTP is successfully verified to reset password",
		Data:    map[string]string{"phone": req.phone, "token": token},
	})
}

// ResetPassword finishes the reset challenge. The session is revoked; the
// client must log in again with the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeConfirm(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := h.otp.ConfirmReset(r.Context(), req.phone, req.token, req.password); err != nil {
		h.respondError(w, err)
		return
	}

	h.clearSessionCookies(w)
	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Successfully reset the password. Please login again",
	})
}

type challengeRequest struct {
	phone string
	token string
	otp   string
}

func (h *AuthHandler) decodeChallenge(r *http.Request) (*challengeRequest, error) {
	var req struct {
		Phone string `json:"phone"`
		Token string `json:"token"`
		OTP   string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperr.InvalidInput("Invalid request body")
	}
	phone, err := h.parsePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if req.Token == "" {
		return nil, apperr.InvalidInput("Token is required")
	}
	if !otpPattern.MatchString(req.OTP) {
		return nil, apperr.InvalidInput("OTP must be 6 digits")
	}
	return &challengeRequest{phone: phone, token: req.Token, otp: req.OTP}, nil
}

type confirmRequest struct {
	phone    string
	token    string
	password string
}

func (h *AuthHandler) decodeConfirm(r *http.Request) (*confirmRequest, error) {
	var req struct {
		Phone    string `json:"phone"`
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperr.InvalidInput("Invalid request body")
	}
	phone, err := h.parsePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if req.Token == "" {
		return nil, apperr.InvalidInput("Token is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperr.InvalidInput("Password must be at least 8 characters")
	}
	return &confirmRequest{phone: phone, token: req.Token, password: req.Password}, nil
}

func (h *AuthHandler) parsePhone(phone string) (string, error) {
	if !util.ValidPhone(phone) {
		return "", apperr.InvalidInput("Invalid phone number")
	}
	return util.NormalizePhone(phone), nil
}

// Cookie helpers. The pair is HttpOnly; SameSite is strict in development
// and none+secure in production where the SPA lives on another origin.

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, session *service.Session) {
	h.writeCookie(w, "accessToken", session.AccessToken, h.config.Auth.AccessTokenTTL)
	h.writeCookie(w, "refreshToken", session.RefreshToken, h.config.Auth.RefreshTokenTTL)
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	h.writeCookie(w, "accessToken", "", -time.Second)
	h.writeCookie(w, "refreshToken", "", -time.Second)
}

func (h *AuthHandler) writeCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	secure := h.config.IsProduction()
	sameSite := http.SameSiteStrictMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func (h *AuthHandler) respondJSON(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondError(w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	if ae.Kind == apperr.KindInternal {
		h.logger.Error("Internal error on HTTP request", util.ErrorField(ae))
	}
	h.respondJSON(w, statusFor(ae), Response{
		Success: false,
		Error:   ae.Code,
		Message: ae.Message,
	})
}

// statusFor maps error kinds to HTTP statuses. The ceilings, the freeze, and
// challenge-token mismatches all surface as 405 with the same code string.
func statusFor(e *apperr.Error) int {
	switch e.Kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusMethodNotAllowed
	case apperr.KindExpired:
		return http.StatusRequestTimeout
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindUnauthorized:
		if e.Code == apperr.CodeNotAllowed {
			return http.StatusMethodNotAllowed
		}
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
