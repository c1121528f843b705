package telegram

import (
	"testing"

	"github.com/m3rciful/gatebot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegisterCommand(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCommand("/help", commands.Command{Handler: noop, Description: "Help", Aliases: []string{"h", "/info"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCommand("/help", commands.Command{Handler: noop, Description: "Again"}); err == nil {
		t.Fatal("duplicate accepted")
	}
	if err := reg.RegisterCommand("/info", commands.Command{Handler: noop, Description: "Alias clash"}); err == nil {
		t.Fatal("alias clash accepted")
	}
	for _, bad := range []struct {
		name string
		cmd  commands.Command
	}{
		{"help", commands.Command{Handler: noop, Description: "x"}},
		{"/", commands.Command{Handler: noop, Description: "x"}},
		{"/x", commands.Command{Description: "x"}},
		{"/y", commands.Command{Handler: noop}},
	} {
		if err := reg.RegisterCommand(bad.name, bad.cmd); err == nil {
			t.Errorf("RegisterCommand(%q) accepted", bad.name)
		}
	}
	if len(reg.Commands()) != 1 {
		t.Fatalf("commands = %d", len(reg.Commands()))
	}
}

func TestLookupCommand(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterCommand("/help", commands.Command{Handler: noop, Description: "Help", Aliases: []string{"h"}})

	for _, text := range []string{"help", "/help", "/help@gatebot", "/help extra words", "h", "/h"} {
		key, _, ok := reg.LookupCommand(text)
		if !ok || key != "/help" {
			t.Errorf("LookupCommand(%q) = %q, %v", text, key, ok)
		}
	}
	for _, text := range []string{"", "   ", "hello", "/start"} {
		if _, _, ok := reg.LookupCommand(text); ok {
			t.Errorf("LookupCommand(%q) matched", text)
		}
	}
}

func TestListCommandsHidesPrivate(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start"})
	_ = reg.RegisterCommand("/stats", commands.Command{Handler: noop, Description: "Stats", AdminOnly: true})
	_ = reg.RegisterCommand("/debug", commands.Command{Handler: noop, Description: "Debug", Hidden: true})
	_ = reg.RegisterCommand("/check", commands.Command{Handler: noop, Description: "Check"})

	visible := reg.ListCommands(true)
	if len(visible) != 2 || visible[0].Text != "/check" || visible[1].Text != "/start" {
		t.Fatalf("visible = %+v", visible)
	}
	if all := reg.ListCommands(false); len(all) != 4 {
		t.Fatalf("all = %d", len(all))
	}
}

func TestCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("b", noop); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallback("a", noop); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCallback("a", noop); err == nil {
		t.Fatal("duplicate callback accepted")
	}
	if err := reg.RegisterCallback("", noop); err == nil {
		t.Fatal("empty key accepted")
	}
	if keys := reg.ListCallbacks(); len(keys) != 2 || keys[0] != "a" {
		t.Fatalf("keys = %v", keys)
	}
	if _, ok := reg.GetCallback("zzz"); ok {
		t.Fatal("unknown key found")
	}
	if reg.CallbackNotFound() == nil {
		t.Fatal("no default not-found handler")
	}
	reg.SetCallbackNotFound(nil)
	if reg.CallbackNotFound() == nil {
		t.Fatal("nil replaced the not-found handler")
	}
}
