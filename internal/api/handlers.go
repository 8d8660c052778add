package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/trading"
	"github.com/xtrntr/papertrade/internal/validate"
)

const defaultStreamInterval = 10 * time.Second

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Auth           *auth.AuthService
	Trading        *trading.Engine
	Quotes         validate.QuoteFinder
	StreamInterval time.Duration
}

// NewHandler creates a new handler
func NewHandler(authService *auth.AuthService, engine *trading.Engine, quotes validate.QuoteFinder, streamInterval time.Duration) *Handler {
	if streamInterval <= 0 {
		streamInterval = defaultStreamInterval
	}
	return &Handler{Auth: authService, Trading: engine, Quotes: quotes, StreamInterval: streamInterval}
}

// Index shows the portfolio valued at current prices
func (h *Handler) Index(w http.ResponseWriter, r *http.Request, user Identity) {
	v, err := h.Trading.Portfolio(r.Context(), user.UserID)
	if err != nil {
		serverError(w, r, true, err)
		return
	}
	render(w, r, http.StatusOK, "portfolio", true, v)
}

// BuyForm shows the buy form
func (h *Handler) BuyForm(w http.ResponseWriter, r *http.Request, user Identity) {
	render(w, r, http.StatusOK, "buy", true, tradeView{})
}

// Buy purchases shares and redirects to the portfolio
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request, user Identity) {
	form, err := formValues(r)
	if err != nil {
		render(w, r, http.StatusBadRequest, "buy", true, tradeView{Error: err.Error()})
		return
	}
	view := tradeView{Symbol: form["symbol"], Shares: form["shares"]}

	if _, err := h.Trading.Buy(r.Context(), user.UserID, view.Symbol, view.Shares); err != nil {
		status, msg, ok := userError(err)
		if !ok {
			serverError(w, r, true, err)
			return
		}
		view.Error = msg
		render(w, r, status, "buy", true, view)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// SellForm lists the tickers the user can sell
func (h *Handler) SellForm(w http.ResponseWriter, r *http.Request, user Identity) {
	tickers, err := h.Trading.HeldTickers(r.Context(), user.UserID)
	if err != nil {
		serverError(w, r, true, err)
		return
	}
	render(w, r, http.StatusOK, "sell", true, tradeView{Tickers: tickers})
}

// Sell disposes of shares and redirects to the portfolio
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request, user Identity) {
	tickers, err := h.Trading.HeldTickers(r.Context(), user.UserID)
	if err != nil {
		serverError(w, r, true, err)
		return
	}
	form, err := formValues(r)
	if err != nil {
		render(w, r, http.StatusBadRequest, "sell", true, tradeView{Error: err.Error(), Tickers: tickers})
		return
	}
	view := tradeView{Symbol: form["symbol"], Shares: form["shares"], Tickers: tickers}

	if _, err := h.Trading.Sell(r.Context(), user.UserID, view.Symbol, view.Shares); err != nil {
		status, msg, ok := userError(err)
		if !ok {
			serverError(w, r, true, err)
			return
		}
		view.Error = msg
		render(w, r, status, "sell", true, view)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// History lists the user's transactions oldest first
func (h *Handler) History(w http.ResponseWriter, r *http.Request, user Identity) {
	transactions, err := h.Trading.History(r.Context(), user.UserID)
	if err != nil {
		serverError(w, r, true, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	render(w, r, http.StatusOK, "history", true, historyView{Transactions: transactions})
}

// QuoteForm shows the quote form
func (h *Handler) QuoteForm(w http.ResponseWriter, r *http.Request, user Identity) {
	render(w, r, http.StatusOK, "quote", true, quoteView{})
}

// Quote looks up the current price of a symbol
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request, user Identity) {
	form, err := formValues(r)
	if err != nil {
		render(w, r, http.StatusBadRequest, "quote", true, quoteView{Error: err.Error()})
		return
	}
	view := quoteView{Symbol: form["symbol"]}

	q, err := validate.Ticker(r.Context(), h.Quotes, view.Symbol)
	if err != nil {
		view.Error = "invalid ticker"
		render(w, r, http.StatusBadRequest, "quote", true, view)
		return
	}
	view.Quote = q
	render(w, r, http.StatusOK, "quote", true, view)
}

// LoginForm forgets any current session and shows the login form
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.forgetSession(w, r)
	render(w, r, http.StatusOK, "login", false, accountView{})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.forgetSession(w, r)

	form, err := formValues(r)
	if err != nil {
		render(w, r, http.StatusBadRequest, "login", false, accountView{Error: err.Error()})
		return
	}
	view := accountView{Username: form["username"]}

	token, err := h.Auth.Login(r.Context(), view.Username, form["password"])
	if err != nil {
		status, msg, ok := userError(err)
		if !ok {
			serverError(w, r, false, err)
			return
		}
		view.Error = msg
		render(w, r, status, "login", false, view)
		return
	}

	setSessionCookie(w, r, token)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout forgets the session and redirects home
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.forgetSession(w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

// RegisterForm forgets any current session and shows the registration form
func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.forgetSession(w, r)
	render(w, r, http.StatusOK, "register", false, accountView{})
}

// Register handles user registration. It does not log the new user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.forgetSession(w, r)

	form, err := formValues(r)
	if err != nil {
		render(w, r, http.StatusBadRequest, "register", false, accountView{Error: err.Error()})
		return
	}
	view := accountView{Username: form["username"]}

	user, err := h.Auth.Register(r.Context(), view.Username, form["password"], form["confirmation"])
	if err != nil {
		status, msg, ok := userError(err)
		if !ok {
			serverError(w, r, false, err)
			return
		}
		view.Error = msg
		render(w, r, status, "register", false, view)
		return
	}

	render(w, r, http.StatusCreated, "registered", false, accountView{Username: user.Username})
}

// forgetSession ends the session named by the request cookie, if any.
func (h *Handler) forgetSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return
	}
	if err := h.Auth.Logout(r.Context(), cookie.Value); err != nil {
		log.Printf("Failed to end session: %v", err)
	}
	clearSessionCookie(w, r)
}

// userError maps a user-facing error to its status code and message.
func userError(err error) (int, string, bool) {
	var uerr *models.UserError
	if !errors.As(err, &uerr) {
		return 0, "", false
	}
	switch uerr.Kind {
	case models.InvalidCredentials:
		return http.StatusUnauthorized, uerr.Message, true
	case models.UsernameTaken:
		return http.StatusConflict, uerr.Message, true
	default:
		return http.StatusBadRequest, uerr.Message, true
	}
}

func serverError(w http.ResponseWriter, r *http.Request, loggedIn bool, err error) {
	log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	render(w, r, http.StatusInternalServerError, "apology", loggedIn, errorView{
		Error:  "internal server error",
		Status: http.StatusInternalServerError,
	})
}

// formValues reads the request fields from a form body or a JSON object.
func formValues(r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, errors.New("invalid request body")
		}
		out := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			out[k] = r.PostForm.Get(k)
		}
		return out, nil
	}

	var body map[string]interface{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, errors.New("invalid request body")
	}
	out := make(map[string]string, len(body))
	for k, v := range body {
		switch v := v.(type) {
		case string:
			out[k] = v
		case nil:
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}
