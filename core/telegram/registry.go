package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/core/telegram/commands"
	"github.com/m3rciful/gatebot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const wireComponent = "tg.wire"

var (
	errInvalidCommand  = errors.New("telegram: command needs a /name, a handler and a description")
	errInvalidCallback = errors.New("telegram: callback needs a key and a handler")
)

// Registry holds bot commands, callbacks and the fallbacks for anything
// unmatched. Commands are registered at startup; callbacks may be added later.
type Registry struct {
	commands map[string]commands.Command
	aliases  map[string]string

	mu        sync.RWMutex
	callbacks map[string]tele.HandlerFunc

	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry. Unknown callbacks are answered with
// "Unsupported action" until SetCallbackNotFound replaces it.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			return nil
		},
	}
}

// RegisterCommand adds cmd under name, which must start with "/". Invalid and
// duplicate registrations are logged and returned as errors.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	var err error
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2 || cmd.Handler == nil || cmd.Description == "":
		err = errInvalidCommand
	case r.has(name):
		err = fmt.Errorf("telegram: command %s already registered", name)
	}
	if err != nil {
		logger.Warn(logger.Background(), wireComponent, "register.command.skip",
			slog.String("name", name),
			slog.String("err", err.Error()),
		)
		return err
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		alias = "/" + strings.TrimPrefix(alias, "/")
		if !r.has(alias) {
			r.aliases[alias] = name
		}
	}
	return nil
}

func (r *Registry) has(name string) bool {
	_, cmd := r.commands[name]
	_, alias := r.aliases[name]
	return cmd || alias
}

// ListCommands returns the commands sorted by name. visibleOnly drops hidden
// and admin-only commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		if visibleOnly && !cmd.Listed() {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: cmd.Description})
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// LookupCommand resolves text such as "help", "/help" or "/help@bot args"
// to a registered command or alias. It returns the canonical name.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", commands.Command{}, false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	name = "/" + strings.TrimPrefix(name, "/")
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Commands returns all registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// RegisterCallback maps key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return errInvalidCallback
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		logger.Warn(logger.Background(), wireComponent, "register.callback.duplicate", slog.String("key", key))
		return fmt.Errorf("telegram: callback %s already registered", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the sorted callback keys.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unknown callback keys. nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h != nil {
		r.callbackNotFound = h
	}
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc { return r.callbackNotFound }

// SetTextFallback sets the handler for text that matches no command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) { r.textFallback = h }

func (r *Registry) TextFallback() tele.HandlerFunc { return r.textFallback }

// SetupCommands publishes the visible commands to the Telegram command menu.
// Failures are logged; the bot works without a menu.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	cmds := reg.ListCommands(true)
	if err := bot.SetCommands(cmds); err != nil {
		logger.Error(logger.Background(), wireComponent, "register.commands.set_failed",
			slog.String("err", netutil.Redact(err.Error())),
		)
		return
	}
	logger.Debug(logger.Background(), wireComponent, "register.commands.set", slog.Int("commands", len(cmds)))
}
