package middleware

import (
	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/core/telegram/commands"
	tghelpers "github.com/m3rciful/gatebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	// AdminID is the only user allowed to run admin commands. Zero disables
	// admin commands for everyone.
	AdminID  int64
	OnReject tele.HandlerFunc
}

func (o AdminOptions) allows(u *tele.User) bool {
	return o.AdminID != 0 && u != nil && u.ID == o.AdminID
}

// WithAdminCheck returns cmd's handler, guarded when cmd is admin-only.
func WithAdminCheck(opts AdminOptions, cmd commands.Command) tele.HandlerFunc {
	if !cmd.AdminOnly {
		return cmd.Handler
	}
	return AdminOnlyMiddleware(opts)(cmd.Handler)
}

// AdminOnlyMiddleware lets only the configured admin through. Everyone else
// gets OnReject.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.allows(c.Sender()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "admin.reject")
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}
