// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// ErrAborted is returned when the user cancels a prompt with Ctrl+C.
var ErrAborted = errors.New("prompt aborted")

// Choice is one keyed option offered by Choose.
type Choice struct {
	Key   string
	Label string
}

// Prompter reads line-edited input with history support.
type Prompter struct {
	line        *liner.State
	historyFile string
}

// New creates a Prompter persisting history under dir. Passing an empty
// dir disables history persistence.
func New(dir string) *Prompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	p := &Prompter{line: line}
	if dir != "" {
		p.historyFile = filepath.Join(dir, "prompt_history")
		p.loadHistory()
	}
	return p
}

func (p *Prompter) loadHistory() {
	if f, err := os.Open(p.historyFile); err == nil {
		p.line.ReadHistory(f)
		f.Close()
	}
}

func (p *Prompter) saveHistory() {
	if p.historyFile == "" {
		return
	}
	f, err := os.OpenFile(p.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	p.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (p *Prompter) Close() {
	p.saveHistory()
	p.line.Close()
}

// Line reads one line of input.
func (p *Prompter) Line(label string) (string, error) {
	input, err := p.line.Prompt(label)
	if err != nil {
		return "", mapErr(err)
	}
	if strings.TrimSpace(input) != "" {
		p.line.AppendHistory(input)
	}
	return input, nil
}

// LineWithSuggestion reads one line prefilled with suggestion, so the
// user can edit in place rather than retype.
func (p *Prompter) LineWithSuggestion(label, suggestion string) (string, error) {
	input, err := p.line.PromptWithSuggestion(label, suggestion, len(suggestion))
	if err != nil {
		return "", mapErr(err)
	}
	if strings.TrimSpace(input) != "" {
		p.line.AppendHistory(input)
	}
	return input, nil
}

// Confirm asks a yes/no question. Empty input selects def.
func (p *Prompter) Confirm(question string, def bool) (bool, error) {
	hint := "[Y/n]"
	if !def {
		hint = "[y/N]"
	}
	for {
		input, err := p.Line(fmt.Sprintf("%s %s ", question, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// Choose asks the user to pick one of the keyed choices, re-prompting
// until a valid key is entered. The first choice is the default on
// empty input. It returns the selected key.
func (p *Prompter) Choose(question string, choices []Choice) (string, error) {
	labels := make([]string, len(choices))
	for i, c := range choices {
		labels[i] = fmt.Sprintf("[%s]%s", c.Key, c.Label)
	}
	label := fmt.Sprintf("%s %s ", question, strings.Join(labels, " / "))
	for {
		input, err := p.Line(label)
		if err != nil {
			return "", err
		}
		key := strings.ToLower(strings.TrimSpace(input))
		if key == "" {
			return choices[0].Key, nil
		}
		for _, c := range choices {
			if key == strings.ToLower(c.Key) || key == strings.ToLower(c.Key+c.Label) {
				return c.Key, nil
			}
		}
	}
}

func mapErr(err error) error {
	if errors.Is(err, liner.ErrPromptAborted) {
		return ErrAborted
	}
	return err
}
