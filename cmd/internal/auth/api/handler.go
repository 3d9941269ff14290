package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Emjay-16/aqi-project/cmd/identity"
	"github.com/Emjay-16/aqi-project/cmd/internal/envelope"
)

// Response messages.
const (
	msgRegistered      = "User registered successfully. Please verify your email."
	msgLoginOK         = "Login successful"
	msgVerified        = "Email verified successfully. You can now log in."
	msgDuplicate       = "Username or email already exists"
	msgUserNotFound    = "User not found"
	msgInvalidPassword = "Invalid password"
	msgNotVerified     = "Email not verified"
	msgInvalidToken    = "Invalid or expired token"
	msgExpiredToken    = "Token has expired"
)

// Handler wires the identity HTTP endpoints to identity.Service.
type Handler struct {
	log *slog.Logger
	cfg Config
	svc *identity.Service

	loginLimiter    *IPRateLimiter
	registerLimiter *IPRateLimiter

	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides the limiter clock (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h != nil && now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs the identity Handler. Call Close to stop limiter cleanup.
func NewHandler(log *slog.Logger, svc *identity.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("auth: nil identity service")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:             log,
		cfg:             cfg,
		svc:             svc,
		loginLimiter:    NewIPRateLimiter(cfg.LoginRate, cfg.LoginBurst, cfg.LimiterIdle),
		registerLimiter: NewIPRateLimiter(cfg.RegisterRate, cfg.RegisterBurst, cfg.LimiterIdle),
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires the identity routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/register", h.handleRegister)
	mux.HandleFunc("/login", h.handleLogin)
	mux.HandleFunc("/verify-email", h.handleVerifyEmail)
}

// Close stops background limiter cleanup.
func (h *Handler) Close() {
	if h == nil {
		return
	}
	h.loginLimiter.Stop()
	h.registerLimiter.Stop()
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		envelope.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if !h.allow(w, r, h.registerLimiter, "register") {
		return
	}

	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Register(r.Context(), identity.RegisterInput{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Username:  req.Username,
		Email:     req.Email,
		Phone:     strings.TrimSpace(req.Phone),
		Password:  req.Password,
	})
	if err != nil {
		h.writeServiceError(w, "auth.register", err, func(err error) string {
			switch {
			case identity.IsConflict(err):
				return msgDuplicate
			case identity.IsInvalidInput(err):
				return inputMessage(err)
			default:
				return ""
			}
		})
		return
	}

	h.log.Info("auth.register.ok", "user_id", res.UserID)
	envelope.OK(w, msgRegistered, userResponse{
		UserID:   res.UserID,
		Username: res.Username,
		Email:    res.Email,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		envelope.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if !h.allow(w, r, h.loginLimiter, "login") {
		return
	}

	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), identity.NormalizeLogin(req.UsernameOrEmail), req.Password)
	if err != nil {
		h.writeServiceError(w, "auth.login", err, func(err error) string {
			switch {
			case identity.IsNotFound(err):
				return msgUserNotFound
			case identity.IsInvalidCredentials(err):
				return msgInvalidPassword
			case identity.IsEmailNotVerified(err):
				return msgNotVerified
			default:
				return ""
			}
		})
		return
	}

	envelope.OK(w, msgLoginOK, userResponse{
		UserID:   res.UserID,
		Username: res.Username,
		Email:    res.Email,
	})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		envelope.MethodNotAllowed(w, http.MethodGet)
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	err := h.svc.VerifyEmail(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, "auth.verify_email", err, func(err error) string {
			switch {
			case identity.IsExpiredToken(err):
				return msgExpiredToken
			case identity.IsInvalidToken(err):
				return msgInvalidToken
			default:
				return ""
			}
		})
		return
	}

	envelope.OK(w, msgVerified, nil)
}

// ---- helpers ----

// writeServiceError maps domain errors to 400 with message(err) and anything else to 500
// with the raw error text.
func (h *Handler) writeServiceError(w http.ResponseWriter, event string, err error, message func(error) string) {
	if identity.IsDomain(err) {
		msg := message(err)
		if msg == "" {
			msg = inputMessage(err)
		}
		h.log.Info(event+".reject", "err", err)
		envelope.Fail(w, http.StatusBadRequest, msg)
		return
	}
	h.log.Error(event+".fail", "err", err)
	envelope.Fail(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := envelope.DecodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		if envelope.IsBodyTooLarge(err) {
			envelope.Fail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		envelope.Fail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request, rl *IPRateLimiter, route string) bool {
	if rl == nil {
		return true
	}
	key := "unknown"
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		key = ip.String()
	}
	ok, retry := rl.Allow(key, h.now())
	if ok {
		return true
	}
	h.log.Warn("auth.rate_limited", "route", route, "ip", key, "retry_after", retry)
	envelope.RateLimited(w, retry)
	return false
}

func inputMessage(err error) string {
	var op identity.OpError
	if errors.As(err, &op) && op.Msg != "" {
		return op.Msg
	}
	return "invalid request"
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
