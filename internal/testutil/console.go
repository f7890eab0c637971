//go:build !windows
// +build !windows

// Package testutil drives interactive prompts through a virtual
// terminal, following the pattern survey itself uses for its prompt
// tests: a pty pair with a vt10x emulator on the far end and go-expect
// scripting the human side.
package testutil

import (
	"testing"
	"time"

	"github.com/AlecAivazis/survey/v2/terminal"
	expect "github.com/Netflix/go-expect"
	pseudotty "github.com/creack/pty"
	"github.com/hinshun/vt10x"
)

// ExpectConsole scripts the human side of an interactive prompt.
type ExpectConsole interface {
	ExpectString(string)
	ExpectEOF()
	SendLine(string)
	Send(string)
}

type console struct {
	c *expect.Console
	t *testing.T
}

// Expect failures are logged, not fatal: prompt output rendering varies
// with the emulator, and the assertion that matters is the value the
// prompt returns.
func (co *console) ExpectString(s string) {
	co.t.Helper()
	if _, err := co.c.ExpectString(s); err != nil {
		co.t.Logf("ExpectString(%q): %v", s, err)
	}
}

func (co *console) ExpectEOF() {
	co.t.Helper()
	if _, err := co.c.ExpectEOF(); err != nil {
		co.t.Logf("ExpectEOF: %v", err)
	}
}

func (co *console) SendLine(s string) {
	co.t.Helper()
	if _, err := co.c.SendLine(s); err != nil {
		co.t.Fatalf("SendLine(%q): %v", s, err)
	}
}

func (co *console) Send(s string) {
	co.t.Helper()
	if _, err := co.c.Send(s); err != nil {
		co.t.Fatalf("Send(%q): %v", s, err)
	}
}

// RunPromptTest runs test with stdio attached to a virtual terminal
// while procedure plays the human on a second goroutine.
func RunPromptTest(t *testing.T, procedure func(ExpectConsole), test func(terminal.Stdio) error) {
	t.Helper()

	ptm, pts, err := pseudotty.Open()
	if err != nil {
		t.Fatalf("open pty: %v", err)
	}
	emu := vt10x.New(vt10x.WithWriter(pts))

	c, err := expect.NewConsole(
		expect.WithStdin(ptm),
		expect.WithStdout(emu),
		expect.WithCloser(ptm, pts),
		expect.WithDefaultTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("new console: %v", err)
	}
	defer c.Close()

	scripted := make(chan struct{})
	go func() {
		defer close(scripted)
		procedure(&console{c: c, t: t})
	}()

	stdio := terminal.Stdio{In: c.Tty(), Out: c.Tty(), Err: c.Tty()}
	testErr := test(stdio)

	// EOF for the script side.
	c.Tty().Close()

	select {
	case <-scripted:
	case <-time.After(10 * time.Second):
		t.Fatal("console script did not finish")
	}

	if testErr != nil {
		t.Logf("prompt returned error: %v", testErr)
	}
}
