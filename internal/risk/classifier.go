// Package risk classifies tool calls as safe or dangerous. Safe calls run
// without a human in the loop; dangerous calls must go through the broker.
// The classifier is deterministic and side-effect free.
package risk

import (
	"encoding/json"
	"strings"
)

// Class is the risk classification of a tool call.
type Class string

// Class values.
const (
	Safe      Class = "safe"
	Dangerous Class = "dangerous"
)

// builtinTable maps the built-in tool names to their risk class.
// Tools that only read data are safe; anything that writes or executes
// requires approval. Names absent from this table are dangerous.
var builtinTable = map[string]Class{
	"Read":  Safe,
	"Glob":  Safe,
	"Grep":  Safe,
	"Write": Dangerous,
	"Edit":  Dangerous,
	"Bash":  Dangerous,
}

// Config adjusts the static table per deployment.
type Config struct {
	// Safe lists additional tool names to treat as safe.
	Safe []string `yaml:"safe,omitempty"`

	// Dangerous lists tool names forced to dangerous, overriding both the
	// built-in table and the Safe list.
	Dangerous []string `yaml:"dangerous,omitempty"`

	// BashAllowPrefixes lists command prefixes that downgrade a Bash call
	// to safe (e.g. "git status"). Matching is on whole fields, so
	// "git status" does not match "git statusx". Commands containing
	// control operators, redirects, or substitutions never match: the
	// allow-list covers single simple commands only.
	BashAllowPrefixes []string `yaml:"bash_allow_prefixes,omitempty"`
}

// Classifier decides which tool calls need interactive approval.
type Classifier struct {
	table         map[string]Class
	bashAllowlist []string
}

// NewClassifier builds a classifier from the built-in table and cfg.
func NewClassifier(cfg Config) *Classifier {
	table := make(map[string]Class, len(builtinTable)+len(cfg.Safe)+len(cfg.Dangerous))
	for name, class := range builtinTable {
		table[name] = class
	}
	for _, name := range cfg.Safe {
		if name = strings.TrimSpace(name); name != "" {
			table[name] = Safe
		}
	}
	for _, name := range cfg.Dangerous {
		if name = strings.TrimSpace(name); name != "" {
			table[name] = Dangerous
		}
	}

	allowlist := make([]string, 0, len(cfg.BashAllowPrefixes))
	for _, prefix := range cfg.BashAllowPrefixes {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			allowlist = append(allowlist, prefix)
		}
	}

	return &Classifier{table: table, bashAllowlist: allowlist}
}

// Classify returns the risk class for a tool call. Unknown tool names are
// dangerous: absence of a policy entry never grants access.
func (c *Classifier) Classify(toolName string, input json.RawMessage) Class {
	class, ok := c.table[strings.TrimSpace(toolName)]
	if !ok {
		return Dangerous
	}
	if class == Dangerous && toolName == "Bash" && c.bashAllowed(input) {
		return Safe
	}
	return class
}

// RequiresApproval reports whether the call must be routed through the broker.
func (c *Classifier) RequiresApproval(toolName string, input json.RawMessage) bool {
	return c.Classify(toolName, input) == Dangerous
}

// bashAllowed checks the command field of a Bash input against the
// configured prefix allow-list.
func (c *Classifier) bashAllowed(input json.RawMessage) bool {
	if len(c.bashAllowlist) == 0 || len(input) == 0 {
		return false
	}

	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return false
	}
	if !plainCommand(args.Command) {
		return false
	}

	fields := strings.Fields(args.Command)
	if len(fields) == 0 {
		return false
	}

	for _, prefix := range c.bashAllowlist {
		want := strings.Fields(prefix)
		if len(want) == 0 || len(want) > len(fields) {
			continue
		}
		match := true
		for i, w := range want {
			if fields[i] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// plainCommand reports whether command is a single simple command. Shell
// control operators, redirects, command substitution, and unbalanced
// quoting all disqualify it: "git status && rm -rf /" must not ride an
// allow-list entry for "git status".
func plainCommand(command string) bool {
	inSingle := false
	inDouble := false
	escaped := false

	for i := 0; i < len(command); i++ {
		ch := command[i]

		if escaped {
			escaped = false
			continue
		}
		if inSingle {
			if ch == '\'' {
				inSingle = false
			}
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}

		// Substitution runs even inside double quotes.
		if ch == '`' || (ch == '$' && i+1 < len(command) && command[i+1] == '(') {
			return false
		}

		if inDouble {
			if ch == '"' {
				inDouble = false
			}
			continue
		}

		switch ch {
		case '\'':
			inSingle = true
		case '"':
			inDouble = true
		case ';', '&', '|', '<', '>', '(', ')', '\n':
			return false
		}
	}
	return !inSingle && !inDouble && !escaped
}
