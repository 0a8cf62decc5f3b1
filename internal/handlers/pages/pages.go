// Package pages renders the landing page and the chat page shell.
package pages

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
)

//go:embed templates/*.html about.md
var assets embed.FS

const (
	title      = "CPRG Secure Chat"
	tagline    = "An end to end encrypted chat app :)"
	aboutTitle = "About CPRG Secure Chat"
)

type Pages struct {
	landing   *template.Template
	chat      *template.Template
	about     template.HTML
	maxLength int
	log       logrus.FieldLogger
}

// New parses the templates and renders the about text once.
func New(maxLength int, log logrus.FieldLogger) (*Pages, error) {
	landing, err := template.ParseFS(assets, "templates/landing.html")
	if err != nil {
		return nil, fmt.Errorf("parse landing template: %w", err)
	}
	chat, err := template.ParseFS(assets, "templates/chat.html")
	if err != nil {
		return nil, fmt.Errorf("parse chat template: %w", err)
	}
	src, err := assets.ReadFile("about.md")
	if err != nil {
		return nil, err
	}
	var about bytes.Buffer
	if err := goldmark.Convert(src, &about); err != nil {
		return nil, fmt.Errorf("render about text: %w", err)
	}
	return &Pages{
		landing:   landing,
		chat:      chat,
		about:     template.HTML(about.String()),
		maxLength: maxLength,
		log:       log,
	}, nil
}

// Landing serves GET /.
func (p *Pages) Landing(w http.ResponseWriter, r *http.Request) {
	p.render(w, p.landing, map[string]interface{}{
		"Title":   title,
		"Tagline": tagline,
	})
}

// Chat serves GET /chat.
func (p *Pages) Chat(w http.ResponseWriter, r *http.Request) {
	// no maxlength attribute when messages are uncapped
	maxLength := 0
	if p.maxLength > 0 {
		maxLength = p.maxLength
	}
	p.render(w, p.chat, map[string]interface{}{
		"Title":      title,
		"AboutTitle": aboutTitle,
		"About":      p.about,
		"MaxLength":  maxLength,
	})
}

func (p *Pages) render(w http.ResponseWriter, t *template.Template, data interface{}) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		p.log.WithError(err).Error("rendering page failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
