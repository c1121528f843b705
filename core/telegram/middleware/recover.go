package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/gatebot/core/logger"
	tghelpers "github.com/m3rciful/gatebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// PanicReply is sent to the user when a handler panics.
const PanicReply = "Something went wrong. Please try again later."

// RecoverMiddleware catches panics in handlers and prevents the bot from crashing.
// The update is answered with PanicReply and the handler returns nil.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			ctx := tghelpers.BuildContext(c)
			attrs := []slog.Attr{
				slog.String("status", "error"),
				slog.String("err", logger.SanitizeLimit(fmt.Sprint(r), 256)),
			}
			if logger.StacksEnabled() {
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))
			}
			logger.Error(ctx, "tg", "tg.panic", attrs...)
			if c.Callback() != nil {
				_ = c.Respond(&tele.CallbackResponse{Text: PanicReply})
			} else if c.Chat() != nil {
				_ = c.Send(PanicReply)
			}
			err = nil
		}()
		return next(c)
	}
}
