package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

var (
	magicLinkHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/magic_link.html"))
	magicLinkText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/magic_link.txt"))
)

// MagicLinkData feeds the sign-in email templates.
type MagicLinkData struct {
	AppName string
	Link    string
	TTL     time.Duration
}

// MagicLinkMessage renders the sign-in email for to.
func MagicLinkMessage(to string, data MagicLinkData) (Message, error) {
	if data.AppName == "" {
		data.AppName = "ProfileKit"
	}

	var html, text bytes.Buffer
	if err := magicLinkHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render magic link html: %w", err)
	}
	if err := magicLinkText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render magic link text: %w", err)
	}

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Your %s sign-in link", data.AppName),
		HTMLBody: html.String(),
		TextBody: text.String(),
		Tag:      "magic-link",
	}, nil
}
