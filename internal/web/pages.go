package web

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/pawpantry/pawpantry-go/internal/model"
)

//go:embed templates/*.html
var pageFS embed.FS

const (
	pageHome           = "home"
	pageLogin          = "login"
	pageRegister       = "register"
	pageForgotPassword = "forgot_password"
	pageResetPassword  = "reset_password"
	pageAccount        = "account"
)

var pages = parsePages(pageHome, pageLogin, pageRegister, pageForgotPassword, pageResetPassword, pageAccount)

func parsePages(names ...string) map[string]*template.Template {
	set := make(map[string]*template.Template, len(names))
	for _, name := range names {
		set[name] = template.Must(template.ParseFS(pageFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return set
}

type pageData struct {
	Title       string
	Identity    *Identity
	Notice      string
	Error       string
	CallbackURL string
	Token       string
	Form        map[string]string
	User        *model.UserResponse
}

// PageHandler serves the auth pages.
type PageHandler struct {
	api          *APIClient
	sessions     SessionStore
	sessionTTL   time.Duration
	cookieSecure bool
}

func NewPageHandler(api *APIClient, sessions SessionStore, sessionTTL time.Duration, cookieSecure bool) *PageHandler {
	return &PageHandler{api: api, sessions: sessions, sessionTTL: sessionTTL, cookieSecure: cookieSecure}
}

func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageHome, pageData{Title: "Home"})
}

func (h *PageHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Sign in", CallbackURL: safeCallback(r.URL.Query().Get("callbackUrl"))}
	if r.URL.Query().Get("reset") == "1" {
		data.Notice = "Your password has been reset. You can sign in with the new one."
	}
	h.render(w, r, http.StatusOK, pageLogin, data)
}

func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	callback := safeCallback(r.PostForm.Get("callbackUrl"))

	resp, err := h.api.Login(r.Context(), model.LoginRequest{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	})
	if err != nil {
		h.renderAPIError(w, r, pageLogin, pageData{
			Title:       "Sign in",
			CallbackURL: callback,
			Form:        map[string]string{"email": r.PostForm.Get("email")},
		}, err)
		return
	}

	if !h.startSession(w, r, resp.AccessToken) {
		return
	}
	http.Redirect(w, r, callback, http.StatusSeeOther)
}

func (h *PageHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageRegister, pageData{Title: "Create account"})
}

func (h *PageHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	req := model.RegisterRequest{
		FirstName: r.PostForm.Get("firstName"),
		LastName:  r.PostForm.Get("lastName"),
		Email:     r.PostForm.Get("email"),
		Password:  r.PostForm.Get("password"),
	}

	resp, err := h.api.Register(r.Context(), req)
	if err != nil {
		h.renderAPIError(w, r, pageRegister, pageData{
			Title: "Create account",
			Form: map[string]string{
				"firstName": req.FirstName,
				"lastName":  req.LastName,
				"email":     req.Email,
			},
		}, err)
		return
	}

	if !h.startSession(w, r, resp.AccessToken) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *PageHandler) ForgotPasswordForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageForgotPassword, pageData{Title: "Reset password"})
}

func (h *PageHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	email := r.PostForm.Get("email")

	resp, err := h.api.ForgotPassword(r.Context(), model.ForgotPasswordRequest{Email: email})
	if err != nil {
		h.renderAPIError(w, r, pageForgotPassword, pageData{
			Title: "Reset password",
			Form:  map[string]string{"email": email},
		}, err)
		return
	}

	h.render(w, r, http.StatusOK, pageForgotPassword, pageData{Title: "Reset password", Notice: resp.Message})
}

func (h *PageHandler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	data := pageData{Title: "Choose a new password", Token: token}
	if token == "" {
		data.Error = "This reset link is incomplete. Request a new one."
	}
	h.render(w, r, http.StatusOK, pageResetPassword, data)
}

func (h *PageHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	token := r.PostForm.Get("token")

	_, err := h.api.ResetPassword(r.Context(), model.ResetPasswordRequest{
		ResetToken:  token,
		NewPassword: r.PostForm.Get("newPassword"),
	})
	if err != nil {
		h.renderAPIError(w, r, pageResetPassword, pageData{Title: "Choose a new password", Token: token}, err)
		return
	}

	http.Redirect(w, r, "/login?reset=1", http.StatusSeeOther)
}

func (h *PageHandler) Account(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, loginURL(r), http.StatusSeeOther)
		return
	}

	user, err := h.api.Me(r.Context(), ident.AccessToken)
	if err != nil {
		if h.endSessionOnUnauthorized(w, r, ident, err) {
			return
		}
		h.renderAPIError(w, r, pageAccount, pageData{Title: "Your account"}, err)
		return
	}

	h.render(w, r, http.StatusOK, pageAccount, pageData{Title: "Your account", User: &user})
}

// ChangePassword loads the profile first so that a rejected session is told
// apart from a wrong current password, which the API also answers with 401.
func (h *PageHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, loginURL(r), http.StatusSeeOther)
		return
	}
	if !parseForm(w, r) {
		return
	}

	user, err := h.api.Me(r.Context(), ident.AccessToken)
	if err != nil {
		if h.endSessionOnUnauthorized(w, r, ident, err) {
			return
		}
		h.renderAPIError(w, r, pageAccount, pageData{Title: "Your account"}, err)
		return
	}
	data := pageData{Title: "Your account", User: &user}

	_, err = h.api.ChangePassword(r.Context(), ident.AccessToken, model.ChangePasswordRequest{
		CurrentPassword: r.PostForm.Get("currentPassword"),
		NewPassword:     r.PostForm.Get("newPassword"),
	})
	if err != nil {
		h.renderAPIError(w, r, pageAccount, data, err)
		return
	}

	data.Notice = "Your password has been changed."
	h.render(w, r, http.StatusOK, pageAccount, data)
}

func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ident, ok := IdentityFromContext(r.Context()); ok {
		if err := h.sessions.Delete(r.Context(), ident.SessionID); err != nil {
			slog.WarnContext(r.Context(), "failed to delete session on logout", "error", err)
		}
	}
	clearSessionCookie(w, h.cookieSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *PageHandler) startSession(w http.ResponseWriter, r *http.Request, accessToken string) bool {
	id, err := h.sessions.Create(r.Context(), accessToken)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", "error", err)
		http.Error(w, "could not start session, please try again", http.StatusInternalServerError)
		return false
	}
	setSessionCookie(w, id, h.sessionTTL, h.cookieSecure)
	return true
}

// endSessionOnUnauthorized drops the session and sends the user to the
// login page when the API rejected its token.
func (h *PageHandler) endSessionOnUnauthorized(w http.ResponseWriter, r *http.Request, ident Identity, err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return false
	}
	if delErr := h.sessions.Delete(r.Context(), ident.SessionID); delErr != nil {
		slog.WarnContext(r.Context(), "failed to delete session", "error", delErr)
	}
	clearSessionCookie(w, h.cookieSecure)
	http.Redirect(w, r, loginURL(r), http.StatusSeeOther)
	return true
}

// renderAPIError re-renders a page with the API's message. Transport
// failures get a generic message.
func (h *PageHandler) renderAPIError(w http.ResponseWriter, r *http.Request, page string, data pageData, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		data.Error = apiErr.Message
		h.render(w, r, apiErr.Status, page, data)
		return
	}

	slog.ErrorContext(r.Context(), "auth api call failed", "page", page, "error", err)
	data.Error = "Something went wrong. Please try again."
	h.render(w, r, http.StatusBadGateway, page, data)
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	if ident, ok := IdentityFromContext(r.Context()); ok {
		data.Identity = &ident
	}

	var buf bytes.Buffer
	if err := pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.ErrorContext(r.Context(), "rendering page failed", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return false
	}
	return true
}
