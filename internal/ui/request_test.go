//go:build !windows
// +build !windows

package ui

import (
	"strings"
	"testing"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/choices"
	"github.com/mverdier/parley/internal/testutil"
)

func TestRenderRequest_Question(t *testing.T) {
	req := &broker.Request{
		Kind:    broker.KindQuestion,
		Prompt:  "Which database should we use?",
		Context: "The schema only needs key-value access.",
	}

	out := RenderRequest(req)
	if !strings.Contains(out, "Which database should we use?") {
		t.Error("rendered request missing prompt")
	}
	if !strings.Contains(out, "Question") {
		t.Error("rendered request missing default title")
	}
	if !strings.Contains(out, "key-value access") {
		t.Error("rendered request missing context")
	}
}

func TestRenderRequest_PlanReview(t *testing.T) {
	req := &broker.Request{
		Kind:   broker.KindPlanReview,
		Title:  "refactor-auth",
		Prompt: "1. Extract middleware\n2. Add tests",
	}

	out := RenderRequest(req)
	if !strings.Contains(out, "refactor-auth") {
		t.Error("rendered plan missing title")
	}
	if !strings.Contains(out, "Extract middleware") {
		t.Error("rendered plan missing body")
	}
}

func TestRenderRequest_MultiQuestion(t *testing.T) {
	req := &broker.Request{
		Kind: broker.KindMultiQuestion,
		Questions: []broker.Question{
			{Prompt: "Which port?"},
			{Prompt: "Which region?"},
		},
	}

	out := RenderRequest(req)
	if !strings.Contains(out, "1. Which port?") || !strings.Contains(out, "2. Which region?") {
		t.Errorf("rendered multi-question missing numbered prompts:\n%s", out)
	}
}

func TestAnswerRequest_FreeText(t *testing.T) {
	req := &broker.Request{Kind: broker.KindQuestion, Prompt: "Which branch?"}

	testutil.RunPromptTest(t,
		func(c testutil.ExpectConsole) {
			c.ExpectString("Which branch?")
			c.SendLine("release-2.4")
			c.ExpectEOF()
		},
		func(stdio terminal.Stdio) error {
			result, err := AnswerRequestWithStdio(req, stdio)
			if err != nil {
				return err
			}
			if result != "release-2.4" {
				t.Errorf("expected 'release-2.4', got %q", result)
			}
			return nil
		},
	)
}

func TestAnswerRequest_SelectChoice(t *testing.T) {
	req := &broker.Request{
		Kind:   broker.KindQuestion,
		Prompt: "Which database?",
		Choices: []choices.Choice{
			{Label: "Postgres", Value: "Postgres"},
			{Label: "MySQL", Value: "MySQL"},
		},
	}

	testutil.RunPromptTest(t,
		func(c testutil.ExpectConsole) {
			c.ExpectString("Which database?")
			c.SendLine("") // First option
			c.ExpectEOF()
		},
		func(stdio terminal.Stdio) error {
			result, err := AnswerRequestWithStdio(req, stdio)
			if err != nil {
				return err
			}
			if result != "Postgres" {
				t.Errorf("expected 'Postgres', got %q", result)
			}
			return nil
		},
	)
}

func TestAnswerRequest_ApprovalYes(t *testing.T) {
	req := &broker.Request{Kind: broker.KindApproval, Prompt: "Run the migration?"}

	testutil.RunPromptTest(t,
		func(c testutil.ExpectConsole) {
			c.ExpectString("Run the migration?")
			c.SendLine("y")
			c.ExpectEOF()
		},
		func(stdio terminal.Stdio) error {
			result, err := AnswerRequestWithStdio(req, stdio)
			if err != nil {
				return err
			}
			if result != "yes" {
				t.Errorf("expected 'yes', got %q", result)
			}
			return nil
		},
	)
}

func TestAnswerRequest_PlanApprove(t *testing.T) {
	req := &broker.Request{Kind: broker.KindPlanReview, Prompt: "the plan"}

	testutil.RunPromptTest(t,
		func(c testutil.ExpectConsole) {
			c.ExpectString("Plan decision:")
			c.SendLine("") // First option: Approve
			c.ExpectEOF()
		},
		func(stdio terminal.Stdio) error {
			result, err := AnswerRequestWithStdio(req, stdio)
			if err != nil {
				return err
			}
			if result != broker.PlanApproved {
				t.Errorf("expected %q, got %q", broker.PlanApproved, result)
			}
			return nil
		},
	)
}
