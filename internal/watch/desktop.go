package watch

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// Notifier shows a notification for a message.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Desktop notifies through osascript on macOS and notify-send on Linux.
// Other platforms are a no-op.
type Desktop struct {
	Timeout time.Duration
}

// Notify runs the platform notifier.
func (d Desktop) Notify(ctx context.Context, title, body string) error {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(body), strconv.Quote(title))
		cmd = exec.CommandContext(ctx, "osascript", "-e", script)
	case "linux":
		cmd = exec.CommandContext(ctx, "notify-send", title, body)
	default:
		return nil
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("desktop notification failed: %w", err)
	}
	return nil
}
