package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/term"

	"floorplanner/pkg/design"
	"floorplanner/pkg/orchestrator"
	"floorplanner/pkg/pipeline"
)

// answerLoop keeps prompting for unanswered questions and resuming until the
// session completes, fails, or the user gives no answers.
func (a *app) answerLoop(ctx context.Context, out *orchestrator.Outcome) (*orchestrator.Outcome, error) {
	scanner := bufio.NewScanner(a.in)
	for out != nil && out.Halted() {
		answers := promptAnswers(scanner, a.out, out.Unanswered)
		if len(answers) == 0 {
			fmt.Fprintln(a.out, "No answers given; leaving the session halted.")
			return out, nil
		}

		before := out.Context
		next, err := a.orch.Resume(ctx, out.SessionID, answers)
		if err != nil {
			return out, err
		}
		diff, derr := contextDiff(before, next.Context)
		if derr != nil {
			a.logger.Warn("Failed to diff design context: %v", derr)
		} else if diff != "" {
			fmt.Fprintln(a.out, diff)
		}
		out = next
	}
	return out, nil
}

// promptAnswers asks each question once. A blank reply takes the question's
// default when it has one and skips it otherwise.
func promptAnswers(scanner *bufio.Scanner, w io.Writer, questions []pipeline.OpenQuestion) map[string]string {
	answers := map[string]string{}
	for _, q := range questions {
		fmt.Fprintf(w, "\n[%s] %s\n", q.ID, q.Text)
		if q.Reason != "" {
			fmt.Fprintf(w, "  why: %s\n", q.Reason)
		}
		if len(q.Options) > 0 {
			fmt.Fprintf(w, "  options: %s\n", strings.Join(q.Options, ", "))
		}
		if q.Default != "" {
			fmt.Fprintf(w, "  answer [%s]: ", q.Default)
		} else {
			fmt.Fprint(w, "  answer: ")
		}
		if !scanner.Scan() {
			break
		}
		reply := strings.TrimSpace(scanner.Text())
		if reply == "" {
			reply = q.Default
		}
		if reply != "" {
			answers[q.ID] = reply
		}
	}
	return answers
}

// contextDiff renders a unified diff of two design contexts as indented JSON.
func contextDiff(before, after *design.Context) (string, error) {
	a, err := indentJSON(before)
	if err != nil {
		return "", err
	}
	b, err := indentJSON(after)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	})
}

func indentJSON(dc *design.Context) (string, error) {
	if dc == nil {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dc); err != nil {
		return "", fmt.Errorf("failed to marshal design context: %w", err)
	}
	return buf.String(), nil
}

// promptForPassword reads the secrets password from the terminal without echo.
func promptForPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Secrets password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer func() {
		for i := range password {
			password[i] = 0
		}
	}()
	return string(password), nil
}
