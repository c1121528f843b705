// Package keyboard builds inline keyboards from plain button descriptions.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is one inline button. A button with URL opens the link; any other
// button sends a callback with Unique and Data.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

func (b InlineBtn) inline(m *tele.ReplyMarkup) tele.InlineButton {
	if b.URL != "" {
		return *m.URL(b.Text, b.URL).Inline()
	}
	return *m.Data(b.Text, b.Unique, b.Data).Inline()
}

// InlineButtons stacks buttons vertically, one per row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	rows := make([][]InlineBtn, len(buttons))
	for i := range buttons {
		rows[i] = buttons[i : i+1]
	}
	return InlineButtonsRows(rows...)
}

// InlineButtonsRows lays buttons out row by row.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{InlineKeyboard: make([][]tele.InlineButton, 0, len(rows))}
	for _, row := range rows {
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, b.inline(m))
		}
		m.InlineKeyboard = append(m.InlineKeyboard, line)
	}
	return m
}
