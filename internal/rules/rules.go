// Package rules evaluates client-side permission auto-answer rules, so
// routine approvals (reading project files, running the test suite) do
// not interrupt the user.
package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/logging"
)

// Rule is one line of the rules file: a verdict, a tool name (or "*")
// and a doublestar pattern matched against the request's path or
// command.
type Rule struct {
	Allow   bool
	Tool    string
	Pattern string
}

// Set holds an ordered rule list. The first matching rule wins.
type Set struct {
	rules []Rule
	log   *logging.Logger
}

// Load reads a rules file. A missing file yields an empty set, not an
// error.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &Set{log: logging.New("rules")}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads rules line by line. Lines are `allow|deny <tool> <pattern>`;
// blank lines and # comments are skipped, malformed lines are dropped
// with a warning rather than failing the whole file.
func Parse(r io.Reader) (*Set, error) {
	s := &Set{log: logging.New("rules")}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			s.log.Warn("dropped malformed rule", map[string]any{"line": lineNum}, nil)
			continue
		}

		var allow bool
		switch fields[0] {
		case "allow":
			allow = true
		case "deny":
			allow = false
		default:
			s.log.Warn("dropped malformed rule", map[string]any{"line": lineNum, "verb": fields[0]}, nil)
			continue
		}

		pattern := strings.Join(fields[2:], " ")
		if !doublestar.ValidatePattern(pattern) {
			s.log.Warn("dropped invalid pattern", map[string]any{"line": lineNum, "pattern": pattern}, nil)
			continue
		}

		s.rules = append(s.rules, Rule{Allow: allow, Tool: fields[1], Pattern: pattern})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return s, nil
}

// Len reports the number of loaded rules.
func (s *Set) Len() int {
	return len(s.rules)
}

// Match evaluates a permission request against the rule list and returns
// the auto-answer verdict. ok is false when no rule matches and the
// request must go to the user.
func (s *Set) Match(req domain.PermissionRequest) (status domain.PermissionStatus, ok bool) {
	target := req.Path
	if target == "" {
		target = req.Command
	}
	if target == "" {
		return "", false
	}

	for _, r := range s.rules {
		if r.Tool != "*" && r.Tool != req.Tool {
			continue
		}
		matched, err := doublestar.Match(r.Pattern, target)
		if err != nil || !matched {
			continue
		}
		if r.Allow {
			return domain.PermissionApproved, true
		}
		return domain.PermissionRejected, true
	}
	return "", false
}
