package web

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ardiansyahdr/gobiz-wallet/internal/limiter"
	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
	"github.com/ardiansyahdr/gobiz-wallet/internal/session"
)

// wib is the merchant portal's business timezone (Asia/Jakarta, UTC+7).
var wib = time.FixedZone("WIB", 7*60*60)

const (
	msgLoginFailed  = "Login failed. Check your email and password."
	msgOTPFailed    = "Verification failed. Check the phone number and code."
	msgRateLimited  = "Too many attempts. Try again in a few minutes."
	msgCSRFRejected = "Form expired. Reload the page and try again."
)

type formData struct {
	AppName   string
	CSRFToken string
	Error     string
	Phone     string // carries the phone number into the otp verify step
	CodeSent  bool
}

type dashboardData struct {
	AppName      string
	CSRFToken    string
	MerchantName string
	MerchantID   string
	Date         string
	Transactions []model.Transaction
	Total        int64
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if acc := s.accountFromRequest(r); acc.Authenticated() {
		http.Redirect(w, r, "/app", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "login.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.checkCSRF(r) {
		s.render(w, http.StatusForbidden, "login.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Error: msgCSRFRejected})
		return
	}
	email := r.FormValue("email")
	password := r.FormValue("password")

	if !s.allowAttempt(r, email) {
		s.render(w, http.StatusTooManyRequests, "login.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Error: msgRateLimited})
		return
	}

	acc := session.NewAccount(r.UserAgent())
	if err := s.api.PasswordLogin(r.Context(), acc, email, password); err != nil {
		s.recordAttempt(r, email, false)
		s.log.Warn("password login failed", zap.Error(err))
		s.render(w, http.StatusBadRequest, "login.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Error: msgLoginFailed})
		return
	}
	s.recordAttempt(r, email, true)

	// best effort: resolve merchant identity so the dashboard is ready
	if _, err := s.api.MerchantID(r.Context(), acc); err != nil {
		s.log.Warn("merchant lookup after login failed", zap.Error(err))
	}

	if err := s.setAccountCookie(w, acc); err != nil {
		s.log.Error("seal session", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/app", http.StatusFound)
}

func (s *Server) handleOTPForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "otp.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w)})
}

func (s *Server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	if !s.checkCSRF(r) {
		s.render(w, http.StatusForbidden, "otp.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Error: msgCSRFRejected})
		return
	}
	phone := r.FormValue("phone")

	if !s.allowAttempt(r, phone) {
		s.render(w, http.StatusTooManyRequests, "otp.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Error: msgRateLimited})
		return
	}

	acc := session.NewAccount(r.UserAgent())
	if err := s.api.RequestOTP(r.Context(), acc, phone); err != nil {
		s.recordAttempt(r, phone, false)
		s.log.Warn("otp request failed", zap.Error(err))
		s.render(w, http.StatusBadRequest, "otp.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Error: msgOTPFailed})
		return
	}
	s.render(w, http.StatusOK, "otp.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Phone: phone, CodeSent: true})
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	if !s.checkCSRF(r) {
		s.render(w, http.StatusForbidden, "otp.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Error: msgCSRFRejected})
		return
	}
	phone := r.FormValue("phone")
	code := r.FormValue("code")

	if !s.allowAttempt(r, phone) {
		s.render(w, http.StatusTooManyRequests, "otp.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Error: msgRateLimited})
		return
	}

	acc := session.NewAccount(r.UserAgent())
	if err := s.api.VerifyOTP(r.Context(), acc, phone, code); err != nil {
		s.recordAttempt(r, phone, false)
		s.log.Warn("otp verify failed", zap.Error(err))
		s.render(w, http.StatusBadRequest, "otp.html", formData{AppName: s.cfg.AppName, CSRFToken: s.issueCSRF(w), Phone: phone, CodeSent: true, Error: msgOTPFailed})
		return
	}
	s.recordAttempt(r, phone, true)

	if _, err := s.api.MerchantID(r.Context(), acc); err != nil {
		s.log.Warn("merchant lookup after otp login failed", zap.Error(err))
	}

	if err := s.setAccountCookie(w, acc); err != nil {
		s.log.Error("seal session", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/app", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !s.checkCSRF(r) {
		http.Error(w, msgCSRFRejected, http.StatusForbidden)
		return
	}
	s.clearAccountCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	acc := s.accountFromRequest(r)
	if !acc.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	date := time.Now().In(wib).Format("2006-01-02")
	txs, err := s.api.Transactions(r.Context(), acc, date, 50)
	if err != nil {
		// refresh rejected, upstream down, whatever: the session is gone
		s.log.Warn("dashboard call failed", zap.String("account", acc.UniqueID), zap.Error(err))
		s.clearAccountCookie(w)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	// the call may have rotated tokens or resolved the merchant; the cookie
	// is the only store, so every successful pass re-seals the record
	if err := s.setAccountCookie(w, acc); err != nil {
		s.log.Error("seal session", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var total int64
	for _, tx := range txs {
		total += tx.Amount
	}
	name := acc.MerchantName
	if name == "" {
		name = "Merchant"
	}
	s.render(w, http.StatusOK, "dashboard.html", dashboardData{
		AppName:      s.cfg.AppName,
		CSRFToken:    s.issueCSRF(w),
		MerchantName: name,
		MerchantID:   acc.MerchantID,
		Date:         date,
		Transactions: txs,
		Total:        total,
	})
}

// allowAttempt consults the limiter; disabled or unreachable limiters allow.
func (s *Server) allowAttempt(r *http.Request, identifier string) bool {
	if s.lim == nil || identifier == "" {
		return true
	}
	ok, _, err := s.lim.Allow(r.Context(), identifier, limiter.HashIP(clientIP(r)))
	if err != nil {
		s.log.Warn("limiter check failed", zap.Error(err))
	}
	return ok
}

// recordAttempt updates limiter counters after a login attempt.
func (s *Server) recordAttempt(r *http.Request, identifier string, success bool) {
	if s.lim == nil || identifier == "" {
		return
	}
	var err error
	if success {
		err = s.lim.Success(r.Context(), identifier, limiter.HashIP(clientIP(r)))
	} else {
		_, _, err = s.lim.Failure(r.Context(), identifier, limiter.HashIP(clientIP(r)))
	}
	if err != nil {
		s.log.Warn("limiter update failed", zap.Error(err))
	}
}
