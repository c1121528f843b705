// Package callbacks reads the key and payload of inline button callbacks.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData returns the unique key and payload of cb. Telebot fills
// Unique itself for its own buttons; otherwise Data is decoded from the
// "\f<unique>|<payload>" form, with the form feed possibly escaped.
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	switch {
	case cb == nil:
		return "", ""
	case cb.Unique != "":
		return cb.Unique, cb.Data
	}
	raw := cb.Data
	for _, prefix := range []string{"\f", `\f`} {
		raw = strings.TrimPrefix(raw, prefix)
	}
	unique, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// CallbackKey returns the unique key of the current callback.
func CallbackKey(c tele.Context) string {
	k, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the payload of the current callback.
func CallbackPayload(c tele.Context) string {
	_, p := ParseCallbackData(c.Callback())
	return p
}
