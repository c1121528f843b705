// Package commands describes slash commands independently of how they are
// routed.
package commands

import tele "gopkg.in/telebot.v4"

// Command is one slash command. Aliases are extra names, with or without the
// leading slash, that resolve to the same command when typed as plain text.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands run for the configured admin only and are left out
	// of the public menu.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Listed reports whether the command belongs in the public command menu.
func (c Command) Listed() bool {
	return !c.Hidden && !c.AdminOnly
}
