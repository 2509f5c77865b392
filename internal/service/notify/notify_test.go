package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCommand_DefaultPerOS checks the built-in command chosen for each platform.
func TestCommand_DefaultPerOS(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"linux":   "notify-send",
		"darwin":  "osascript",
		"windows": "msg",
	}

	for goos, want := range cases {
		c := &Command{GOOS: goos}

		argv, err := c.argv("Alarm", "Shake detected")
		require.NoError(t, err, goos)
		require.Equal(t, want, argv[0], goos)
	}

	_, err := (&Command{GOOS: "plan9"}).argv("a", "b")
	require.ErrorIs(t, err, ErrUnsupportedOS)
}

// TestCommand_Template substitutes placeholders and reports failures.
func TestCommand_Template(t *testing.T) {
	t.Parallel()

	var gotName string

	var gotArgs []string

	c := NewCommand("logger -t {title} {body}")
	c.run = func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args

		return nil
	}

	require.NoError(t, c.Notify(context.Background(), "shake-alarm", "triggered"))
	require.Equal(t, "logger", gotName)
	require.Equal(t, []string{"-t", "shake-alarm", "triggered"}, gotArgs)

	errExec := errors.New("exec failed")
	c.run = func(context.Context, string, ...string) error { return errExec }
	require.ErrorIs(t, c.Notify(context.Background(), "t", "b"), errExec)
}
