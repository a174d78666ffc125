// cmd/console.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// console is the terminal implementation of the agent's human-in-the-loop
// collaborators. Reads happen on a goroutine so a Ctrl-C during a prompt
// still aborts the task promptly.
type console struct {
	in  *bufio.Reader
	out io.Writer
}

var (
	_ schemas.Confirmer    = (*console)(nil)
	_ schemas.UserPrompter = (*console)(nil)
)

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewReader(in), out: out}
}

// RequestConfirmation presents a risky action and blocks until the user
// answers. Anything other than an explicit yes is a denial.
func (c *console) RequestConfirmation(ctx context.Context, action schemas.BrowserAction, verdict schemas.RiskVerdict) (schemas.ConfirmationAnswer, error) {
	fmt.Fprintf(c.out, "\n[%s RISK] The agent wants to: %s\n", verdict.Level, action.Describe())
	fmt.Fprintf(c.out, "Reason: %s\n", verdict.Reason)
	fmt.Fprint(c.out, "Allow this action? [y/N]: ")

	line, err := c.readLine(ctx)
	if err != nil {
		return schemas.ConfirmationDeny, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return schemas.ConfirmationAllow, nil
	}
	return schemas.ConfirmationDeny, nil
}

// AskUser relays the agent's question and returns the free-text answer.
func (c *console) AskUser(ctx context.Context, query schemas.UserQuery) (string, error) {
	fmt.Fprintf(c.out, "\n[AGENT QUESTION] %s\n", query.Question)
	for i, option := range query.Options {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, option)
	}
	fmt.Fprint(c.out, "> ")

	line, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readLine reads one line from stdin, racing the context.
func (c *console) readLine(ctx context.Context) (string, error) {
	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- lineResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.line, nil
	}
}
