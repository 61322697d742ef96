// Package web serves the browser-facing wallet: login forms, the dashboard,
// and the encrypted session cookie transport. It is the single place where
// failures from the gobiz access layer turn into transport outcomes (cleared
// session + redirect, or a re-rendered form).
package web

import (
	"embed"
	"html/template"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ardiansyahdr/gobiz-wallet/internal/gobiz"
	"github.com/ardiansyahdr/gobiz-wallet/internal/limiter"
	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
	"github.com/ardiansyahdr/gobiz-wallet/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	accountCookie = "gobiz_acc"
	csrfCookie    = "gobiz_csrf"

	accountCookieMaxAge = 7 * 24 * time.Hour
)

// Config tunes the web server.
type Config struct {
	AppName       string
	SecureCookies bool // set in production (HTTPS)
}

// Server wires the session codec, the gobiz client and the limiter into the
// HTTP front end.
type Server struct {
	cfg   Config
	log   *zap.Logger
	codec *session.Codec
	api   *gobiz.Client
	lim   limiter.Limiter // nil disables login rate limiting
	csrf  *CSRF
	tmpl  *template.Template
}

// NewServer constructs the web server and parses the embedded templates.
func NewServer(cfg Config, log *zap.Logger, codec *session.Codec, api *gobiz.Client, lim limiter.Limiter, csrf *CSRF) (*Server, error) {
	if cfg.AppName == "" {
		cfg.AppName = "GoBiz Wallet"
	}
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, log: log, codec: codec, api: api, lim: lim, csrf: csrf, tmpl: tmpl}, nil
}

// Handler returns the routed handler wrapped with recovery and logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /login", s.handleLoginForm)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /login/otp", s.handleOTPForm)
	mux.HandleFunc("POST /login/otp/request", s.handleOTPRequest)
	mux.HandleFunc("POST /login/otp/verify", s.handleOTPVerify)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /app", s.handleApp)
	return recoverPanics(s.log, logRequests(s.log, mux))
}

// accountFromRequest decodes the session cookie bound to this client's user
// agent. nil means "not authenticated", whatever the underlying reason.
func (s *Server) accountFromRequest(r *http.Request) *model.Account {
	c, err := r.Cookie(accountCookie)
	if err != nil {
		return nil
	}
	return s.codec.Decode(c.Value, r.UserAgent())
}

func (s *Server) setAccountCookie(w http.ResponseWriter, acc *model.Account) error {
	token, err := s.codec.Encode(acc)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     accountCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(accountCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) clearAccountCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accountCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// issueCSRF mints a token and sets its cookie half; the caller embeds the
// returned token in the form.
func (s *Server) issueCSRF(w http.ResponseWriter) string {
	token, err := s.csrf.Issue()
	if err != nil {
		s.log.Error("csrf issue", zap.Error(err))
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// checkCSRF validates the double-submit pair on a form POST.
func (s *Server) checkCSRF(r *http.Request) bool {
	c, err := r.Cookie(csrfCookie)
	if err != nil {
		return false
	}
	return s.csrf.Verify(c.Value, r.FormValue("csrf_token"))
}

// clientIP extracts the remote host for rate-limit scoping.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render", zap.String("template", name), zap.Error(err))
	}
}
