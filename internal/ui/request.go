package ui

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/choices"
)

const otherOption = "Other (type your own answer)"

// Plan review options as shown to the human, in display order.
var planOptions = []string{
	"Approve",
	"Approve with comments",
	"Request changes",
	"Cancel",
}

var planDecisions = map[string]string{
	"Approve":               broker.PlanApproved,
	"Approve with comments": broker.PlanApprovedWithComments,
	"Request changes":       broker.PlanRecreateWithChanges,
	"Cancel":                broker.PlanCancelled,
}

// RenderRequest returns the styled panel shown when a request arrives.
func RenderRequest(req *broker.Request) string {
	var b strings.Builder

	title := req.Title
	if title == "" {
		switch req.Kind {
		case broker.KindPlanReview:
			title = "Plan review"
		case broker.KindApproval:
			title = "Approval needed"
		default:
			title = "Question"
		}
	}

	switch req.Kind {
	case broker.KindPlanReview:
		b.WriteString(InfoBox(title, req.Prompt))
	case broker.KindMultiQuestion:
		var lines []string
		for i, q := range req.Questions {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, q.Prompt))
		}
		b.WriteString(InfoBox(title, strings.Join(lines, "\n")))
	default:
		b.WriteString(InfoBox(title, req.Prompt))
	}

	if req.Context != "" {
		b.WriteString(StyleDim.Render(req.Context) + "\n")
	}
	return b.String()
}

// AnswerRequest prompts the local human for an answer to req on the
// real terminal.
func AnswerRequest(req *broker.Request) (string, error) {
	return AnswerRequestWithStdio(req, defaultStdio())
}

// AnswerRequestWithStdio is AnswerRequest with custom stdio for testing.
// For plan reviews the first line of the returned value is the decision;
// any following lines are reviewer comments.
func AnswerRequestWithStdio(req *broker.Request, stdio terminal.Stdio) (string, error) {
	switch req.Kind {
	case broker.KindApproval:
		ok, err := PromptConfirmWithStdio(req.Prompt, true, stdio)
		if err != nil {
			return "", err
		}
		if ok {
			return "yes", nil
		}
		return "no", nil

	case broker.KindPlanReview:
		label, err := PromptSelectWithStdio("Plan decision:", planOptions, stdio)
		if err != nil {
			return "", err
		}
		decision := planDecisions[label]
		if decision == broker.PlanApprovedWithComments || decision == broker.PlanRecreateWithChanges {
			comments, err := PromptRequiredWithStdio("Comments:", stdio)
			if err != nil {
				return "", err
			}
			return decision + "\n" + comments, nil
		}
		return decision, nil

	case broker.KindMultiQuestion:
		answers := make([]string, 0, len(req.Questions))
		for _, q := range req.Questions {
			answer, err := answerQuestion(q.Prompt, choiceLabels(q.Choices), stdio)
			if err != nil {
				return "", err
			}
			answers = append(answers, answer)
		}
		return strings.Join(answers, "\n"), nil

	default:
		return answerQuestion(req.Prompt, choiceLabels(req.Choices), stdio)
	}
}

// answerQuestion runs a single question: a select when choices were
// detected, free text otherwise. The select always carries an escape
// hatch for a custom reply.
func answerQuestion(prompt string, choices []string, stdio terminal.Stdio) (string, error) {
	if len(choices) == 0 {
		return PromptRequiredWithStdio(prompt, stdio)
	}

	options := append(append([]string{}, choices...), otherOption)
	picked, err := PromptSelectWithStdio(prompt, options, stdio)
	if err != nil {
		return "", err
	}
	if picked == otherOption {
		return PromptRequiredWithStdio("Your answer:", stdio)
	}
	return picked, nil
}

func choiceLabels(cs []choices.Choice) []string {
	labels := make([]string, len(cs))
	for i, c := range cs {
		labels[i] = c.Label
	}
	return labels
}
