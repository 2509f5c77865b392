// Package notify shows best-effort local notifications through the host's
// built-in tools.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnsupportedOS indicates the current OS has no known notification tool.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// Notifier posts a short local notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Command runs an OS command to show a notification. An empty Argv selects the
// platform default:
//   - Linux:   `notify-send -u critical <title> <body>`
//   - macOS:   `osascript -e 'display notification ...'`
//   - Windows: `msg * <title>: <body>`
//
// A custom Argv may use the placeholders {title} and {body}.
type Command struct {
	Argv []string
	// GOOS overrides runtime.GOOS when choosing the default command.
	GOOS string

	run func(ctx context.Context, name string, args ...string) error
}

// NewCommand builds a notifier from a whitespace-separated command template.
func NewCommand(template string) *Command {
	return &Command{Argv: strings.Fields(template)}
}

// Notify starts the command and waits for it to finish.
func (c *Command) Notify(ctx context.Context, title, body string) error {
	argv, err := c.argv(title, body)
	if err != nil {
		return err
	}

	run := c.run
	if run == nil {
		run = runCommand
	}

	if err = run(ctx, argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("run %s: %w", argv[0], err)
	}

	return nil
}

func (c *Command) argv(title, body string) ([]string, error) {
	if len(c.Argv) > 0 {
		replacer := strings.NewReplacer("{title}", title, "{body}", body)
		out := make([]string, len(c.Argv))

		for i, arg := range c.Argv {
			out[i] = replacer.Replace(arg)
		}

		return out, nil
	}

	goos := c.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	switch strings.ToLower(goos) {
	case "linux", "freebsd", "openbsd", "netbsd":
		return []string{"notify-send", "-u", "critical", title, body}, nil
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)

		return []string{"osascript", "-e", script}, nil
	case "windows":
		return []string{"msg", "*", title + ": " + body}, nil
	default:
		return nil, fmt.Errorf("notify on %s: %w", goos, ErrUnsupportedOS)
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run() //nolint:gosec // Command comes from the operator's config.
}
