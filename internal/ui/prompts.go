package ui

import (
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

func defaultStdio() terminal.Stdio {
	return terminal.Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// PromptRequired asks for a non-empty free-text answer.
func PromptRequired(label string) (string, error) {
	return PromptRequiredWithStdio(label, defaultStdio())
}

// PromptConfirm asks a yes/no question.
func PromptConfirm(label string, defaultYes bool) (bool, error) {
	return PromptConfirmWithStdio(label, defaultYes, defaultStdio())
}

// PromptSelect asks the user to pick one of options.
func PromptSelect(label string, options []string) (string, error) {
	return PromptSelectWithStdio(label, options, defaultStdio())
}

// The WithStdio variants take explicit terminal streams so tests can
// drive them through a virtual console.

func PromptRequiredWithStdio(label string, stdio terminal.Stdio) (string, error) {
	var value string
	err := survey.AskOne(
		&survey.Input{Message: label},
		&value,
		survey.WithValidator(survey.Required),
		survey.WithStdio(stdio.In, stdio.Out, stdio.Err),
	)
	return value, err
}

func PromptConfirmWithStdio(label string, defaultYes bool, stdio terminal.Stdio) (bool, error) {
	var value bool
	err := survey.AskOne(
		&survey.Confirm{Message: label, Default: defaultYes},
		&value,
		survey.WithStdio(stdio.In, stdio.Out, stdio.Err),
	)
	return value, err
}

func PromptSelectWithStdio(label string, options []string, stdio terminal.Stdio) (string, error) {
	var value string
	err := survey.AskOne(
		&survey.Select{Message: label, Options: options},
		&value,
		survey.WithStdio(stdio.In, stdio.Out, stdio.Err),
	)
	return value, err
}
