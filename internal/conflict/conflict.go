// Package conflict decides what happens when extraction would overwrite a file
// that already exists with different content.
package conflict

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Resolution is the answer to one file conflict.
type Resolution int

const (
	Ignore Resolution = iota
	Overwrite
	IgnoreAll
	OverwriteAll
)

func (r Resolution) String() string {
	switch r {
	case Ignore:
		return "ignore"
	case Overwrite:
		return "overwrite"
	case IgnoreAll:
		return "ignore-all"
	case OverwriteAll:
		return "overwrite-all"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// Overwrites reports whether the file should be replaced.
func (r Resolution) Overwrites() bool {
	return r == Overwrite || r == OverwriteAll
}

// Resolver answers file conflicts.
type Resolver interface {
	ResolveFileConflict(message string) Resolution
}

// Action is the configured conflict behavior.
type Action string

const (
	// ActionPrompt asks the Prompter, falling back to Ignore without one.
	ActionPrompt    Action = ""
	ActionOverwrite Action = "overwrite"
	ActionIgnore    Action = "ignore"
)

// ParseAction accepts "", "prompt", "overwrite" and "ignore".
func ParseAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "prompt":
		return ActionPrompt, nil
	case "overwrite":
		return ActionOverwrite, nil
	case "ignore":
		return ActionIgnore, nil
	default:
		return "", fmt.Errorf("conflict: unknown file conflict action %q", raw)
	}
}

// Policy is the Resolver used by install runs. A configured Overwrite or
// Ignore always wins. Otherwise an earlier OverwriteAll or IgnoreAll answer
// sticks for the rest of the run, and the Prompter is asked. Without a
// Prompter (non-interactive) the answer is Ignore.
type Policy struct {
	Default  Action
	Prompter Resolver

	overwriteAll bool
	ignoreAll    bool
}

var _ Resolver = (*Policy)(nil)

func (p *Policy) ResolveFileConflict(message string) Resolution {
	if p.Default == ActionOverwrite || p.overwriteAll {
		return Overwrite
	}
	if p.Default == ActionIgnore || p.ignoreAll {
		return Ignore
	}
	if p.Prompter == nil {
		return Ignore
	}
	r := p.Prompter.ResolveFileConflict(message)
	p.overwriteAll = r == OverwriteAll
	p.ignoreAll = r == IgnoreAll
	return r
}

// Console prompts on a line-oriented terminal.
type Console struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

var _ Resolver = (*Console)(nil)

// ResolveFileConflict asks until it reads one of y, a, n or l. End of input
// answers Ignore.
func (c *Console) ResolveFileConflict(message string) Resolution {
	if c.scanner == nil {
		c.scanner = bufio.NewScanner(c.In)
	}
	for {
		fmt.Fprintf(c.Out, "%s\n[Y] Yes  [A] Yes to All  [N] No  [L] No to All ? ", message)
		if !c.scanner.Scan() {
			fmt.Fprintln(c.Out)
			return Ignore
		}
		switch strings.ToLower(strings.TrimSpace(c.scanner.Text())) {
		case "y", "yes":
			return Overwrite
		case "a":
			return OverwriteAll
		case "n", "no":
			return Ignore
		case "l":
			return IgnoreAll
		}
	}
}
