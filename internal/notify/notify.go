// Package notify posts macOS desktop notifications through osascript.
// Notifications are decoration; failures are logged and swallowed.
package notify

import (
	"context"
	"fmt"
	log "log/slog"
	"os/exec"
	"strings"
)

// Notifier posts one notification per call.
type Notifier struct {
	title string
	run   func(ctx context.Context, name string, args ...string) error
}

func New(title string) *Notifier {
	if title == "" {
		title = "whisperd"
	}
	return &Notifier{
		title: title,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Notify shows body under the notifier's title, best-effort.
func (n *Notifier) Notify(ctx context.Context, body string) {
	if n == nil || body == "" {
		return
	}
	script := fmt.Sprintf("display notification %s with title %s",
		quote(body), quote(n.title))
	if err := n.run(ctx, "osascript", "-e", script); err != nil {
		log.Debug("notification not shown", "err", err)
	}
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
