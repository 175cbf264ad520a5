// Package web embeds the chat page and its assets and provides the HTTP
// handler that serves them.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

//go:embed static
var staticFS embed.FS

// PageOptions are the values rendered into the index page.
type PageOptions struct {
	Title         string
	WebsocketPath string
	Placeholder   string
	Debug         bool
}

// Handler returns an http.Handler serving the rendered index page at "/"
// and the embedded assets under "/static/". The index is rendered once.
func Handler(opts PageOptions) (http.Handler, error) {
	if opts.Title == "" {
		opts.Title = "Chatbot"
	}
	if opts.WebsocketPath == "" {
		opts.WebsocketPath = "/ws/chat"
	}
	if opts.Placeholder == "" {
		opts.Placeholder = "Enter any ask or say something"
	}

	tmpl, err := template.ParseFS(staticFS, "static/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}

	var page bytes.Buffer
	if err := tmpl.Execute(&page, opts); err != nil {
		return nil, fmt.Errorf("render index template: %w", err)
	}
	index := page.Bytes()
	rendered := time.Now()

	subFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("web: failed to create sub filesystem: %w", err)
	}
	assets := http.StripPrefix("/static/", http.FileServer(http.FS(subFS)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/static/") {
			if r.URL.Path == "/static/index.html" {
				http.NotFound(w, r)
				return
			}
			assets.ServeHTTP(w, r)
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "index.html", rendered, bytes.NewReader(index))
		slog.Debug("web: served index", "remote", r.RemoteAddr)
	}), nil
}
