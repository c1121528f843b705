// Package format holds text helpers for Telegram HTML parse mode.
package format

import (
	"html"
	"strings"
)

// EscapeHTML escapes <, >, & and quotes so text is literal under HTML parse mode.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// Bold wraps escaped text in <b>.
func Bold(s string) string {
	return "<b>" + EscapeHTML(s) + "</b>"
}

// Code wraps escaped text in <code>, which Telegram renders tap-to-copy.
func Code(s string) string {
	return "<code>" + EscapeHTML(s) + "</code>"
}

// Link builds an anchor with an escaped label.
func Link(label, href string) string {
	return `<a href="` + EscapeHTML(href) + `">` + EscapeHTML(label) + "</a>"
}

// DisplayName picks @username, then the first name, then a generic label.
func DisplayName(username, firstName string) string {
	if u := strings.TrimSpace(username); u != "" {
		return "@" + strings.TrimPrefix(u, "@")
	}
	if f := strings.TrimSpace(firstName); f != "" {
		return f
	}
	return "User"
}
