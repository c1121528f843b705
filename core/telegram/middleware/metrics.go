package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const repliesKey = "replies"

// Replies counts what a handler sent back for one update.
type Replies struct {
	Messages int
	Keyboard bool
	// Answered is set once the callback query has been answered.
	Answered bool
}

// replyCounter is shared with sender workers, which deliver queued sends.
type replyCounter struct {
	messages atomic.Int32
	keyboard atomic.Bool
	answered atomic.Bool
}

func (r *replyCounter) snapshot() Replies {
	return Replies{
		Messages: int(r.messages.Load()),
		Keyboard: r.keyboard.Load(),
		Answered: r.answered.Load(),
	}
}

// replyContext counts successful outbound calls made through the context.
type replyContext struct {
	tele.Context
	r *replyCounter
}

func (rc replyContext) count(err error, opts []any) error {
	if err != nil {
		return err
	}
	rc.r.messages.Add(1)
	if withMarkup(opts) {
		rc.r.keyboard.Store(true)
	}
	return nil
}

func withMarkup(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			return v != nil
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		}
	}
	return false
}

func (rc replyContext) Send(what any, opts ...any) error {
	return rc.count(rc.Context.Send(what, opts...), opts)
}

func (rc replyContext) Reply(what any, opts ...any) error {
	return rc.count(rc.Context.Reply(what, opts...), opts)
}

func (rc replyContext) Edit(what any, opts ...any) error {
	return rc.count(rc.Context.Edit(what, opts...), opts)
}

func (rc replyContext) EditOrSend(what any, opts ...any) error {
	return rc.count(rc.Context.EditOrSend(what, opts...), opts)
}

func (rc replyContext) EditOrReply(what any, opts ...any) error {
	return rc.count(rc.Context.EditOrReply(what, opts...), opts)
}

func (rc replyContext) Respond(resp ...*tele.CallbackResponse) error {
	err := rc.Context.Respond(resp...)
	if err == nil {
		rc.r.answered.Store(true)
	}
	return err
}

// MessageMetricsMiddleware wraps the context so handlers' replies are counted.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := c.(replyContext); ok {
			return next(c)
		}
		r := &replyCounter{}
		c.Set(repliesKey, r)
		return next(replyContext{Context: c, r: r})
	}
}

// RepliesOf returns the counters of the current update. The zero value is
// returned when the middleware is not installed.
func RepliesOf(c tele.Context) Replies {
	if r, ok := c.Get(repliesKey).(*replyCounter); ok && r != nil {
		return r.snapshot()
	}
	return Replies{}
}

// GetCounters reads the message count and keyboard flag.
func GetCounters(c tele.Context) (int, bool) {
	r := RepliesOf(c)
	return r.Messages, r.Keyboard
}
