package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/encodeous/dvsim/core"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

// linePrompter edits lines with history and tab completion.
type linePrompter struct {
	s        *liner.State
	fallback core.Prompter
}

func (p *linePrompter) Prompt(prompt string) (string, error) {
	if p.fallback != nil {
		return p.fallback.Prompt(prompt)
	}
	line, err := p.s.Prompt(prompt)
	switch {
	case err == nil:
		if strings.TrimSpace(line) != "" {
			p.s.AppendHistory(line)
		}
	case errors.Is(err, liner.ErrPromptAborted):
		return "", io.EOF
	case errors.Is(err, liner.ErrNotTerminalOutput):
		p.fallback = newScanPrompter(os.Stdin, os.Stdout)
		return p.fallback.Prompt(prompt)
	}
	return line, err
}

// scanPrompter reads plain lines, for scripts and pipes.
type scanPrompter struct {
	scanner *bufio.Scanner
	w       io.Writer
}

func newScanPrompter(r io.Reader, w io.Writer) *scanPrompter {
	return &scanPrompter{bufio.NewScanner(r), w}
}

func (p *scanPrompter) Prompt(prompt string) (string, error) {
	if p.w != nil {
		fmt.Fprint(p.w, prompt)
	}
	if p.scanner.Scan() {
		return p.scanner.Text(), nil
	}
	err := p.scanner.Err()
	if err == nil {
		err = io.EOF
	}
	return "", err
}

// newPrompter uses liner when stdin is a terminal. The returned function restores the terminal.
func newPrompter(complete func(line string) []string) (core.Prompter, func()) {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return newScanPrompter(os.Stdin, nil), func() {}
	}
	s := liner.NewLiner()
	s.SetCtrlCAborts(true)
	s.SetCompleter(complete)
	return &linePrompter{s: s}, func() {
		_ = s.Close()
	}
}
