package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = parsePages()

// parsePages pairs every page with the shared layout.
func parsePages() map[string]*template.Template {
	funcs := template.FuncMap{"usd": money.USD}
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		panic(err)
	}

	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		t := template.Must(template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", name))
		out[strings.TrimSuffix(base, ".html")] = t
	}
	return out
}

// View models. JSON clients receive these as-is.
type (
	tradeView struct {
		Error   string   `json:"error,omitempty"`
		Symbol  string   `json:"symbol,omitempty"`
		Shares  string   `json:"shares,omitempty"`
		Tickers []string `json:"tickers,omitempty"`
	}

	historyView struct {
		Transactions []models.Transaction `json:"transactions"`
	}

	quoteView struct {
		Error  string        `json:"error,omitempty"`
		Symbol string        `json:"symbol,omitempty"`
		Quote  *models.Quote `json:"quote,omitempty"`
	}

	accountView struct {
		Error    string `json:"error,omitempty"`
		Username string `json:"username,omitempty"`
	}

	errorView struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
)

type layoutData struct {
	LoggedIn bool
	Data     interface{}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// render writes data as the named HTML page, or as JSON when the client asks for it.
func render(w http.ResponseWriter, r *http.Request, status int, page string, loggedIn bool, data interface{}) {
	if wantsJSON(r) {
		writeJSON(w, status, data)
		return
	}

	t, ok := pages[page]
	if !ok {
		log.Printf("Unknown page %q", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, layoutData{LoggedIn: loggedIn, Data: data}); err != nil {
		log.Printf("Failed to render %s: %v", page, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
