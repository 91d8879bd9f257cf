// Package wm drives the macOS desktop: yabai for window management, open
// for launching apps and AppleScript for everything the two cannot do. All
// surfaces go through one Runner so tests can script the host.
package wm

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/nlu"
)

// ErrUnknownAction reports an intent the executor has no mapping for.
var ErrUnknownAction = errors.New("unknown action")

// Runner executes one external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Client is the desktop-control surface.
type Client struct {
	run Runner
}

func New() *Client { return &Client{run: execRunner} }

// NewWithRunner substitutes the command runner; used by tests.
func NewWithRunner(run Runner) *Client { return &Client{run: run} }

// directions maps spoken directions onto yabai's compass arguments.
var directions = map[string]string{
	"north": "north", "south": "south", "east": "east", "west": "west",
	"up": "north", "down": "south", "right": "east", "left": "west",
}

// Execute performs one interpreted intent and returns the phrase to speak
// back, empty when the action warrants no spoken confirmation.
func (c *Client) Execute(ctx context.Context, in nlu.Intent) (string, error) {
	switch in.Action {
	case "open_app":
		if in.App == "" {
			return "", errors.New("open_app: missing app name")
		}
		if err := c.OpenApp(ctx, in.App); err != nil {
			return "", err
		}
		return "Opening " + in.App, nil

	case "focus_app":
		if in.App == "" {
			return "", errors.New("focus_app: missing app name")
		}
		return "", c.FocusApp(ctx, in.App)

	case "close_window":
		return "", c.yabai(ctx, "window", "--close")

	case "toggle_fullscreen":
		return "", c.yabai(ctx, "window", "--toggle", "zoom-fullscreen")

	case "toggle_float":
		return "", c.yabai(ctx, "window", "--toggle", "float")

	case "focus_window":
		dir, err := direction(in.Direction)
		if err != nil {
			return "", err
		}
		return "", c.yabai(ctx, "window", "--focus", dir)

	case "swap_window":
		dir, err := direction(in.Direction)
		if err != nil {
			return "", err
		}
		return "", c.yabai(ctx, "window", "--swap", dir)

	case "move_space":
		if in.Amount < 1 {
			return "", fmt.Errorf("move_space: bad space %d", in.Amount)
		}
		return "", c.yabai(ctx, "window", "--space", strconv.Itoa(in.Amount))

	case "type_text":
		return "", c.TypeText(ctx, in.Text)

	case "set_volume":
		if err := c.SetVolume(ctx, in.Amount); err != nil {
			return "", err
		}
		return fmt.Sprintf("Volume %d percent", clampVolume(in.Amount)), nil

	case "change_volume":
		v, err := c.ChangeVolume(ctx, in.Amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Volume %d percent", v), nil

	case "say":
		return in.Text, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, in.Action)
	}
}

// OpenApp launches (or foregrounds) an application by name.
func (c *Client) OpenApp(ctx context.Context, name string) error {
	_, err := c.run(ctx, "open", "-a", name)
	return err
}

// FocusApp activates a running application without relaunching it.
func (c *Client) FocusApp(ctx context.Context, name string) error {
	script := fmt.Sprintf("tell application %s to activate", quoteAppleScript(name))
	_, err := c.run(ctx, "osascript", "-e", script)
	return err
}

// TypeText emits text as keystrokes into the focused window.
func (c *Client) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	script := fmt.Sprintf("tell application \"System Events\" to keystroke %s", quoteAppleScript(text))
	_, err := c.run(ctx, "osascript", "-e", script)
	return err
}

func (c *Client) yabai(ctx context.Context, args ...string) error {
	_, err := c.run(ctx, "yabai", append([]string{"-m"}, args...)...)
	return err
}

func direction(d string) (string, error) {
	dir, ok := directions[strings.ToLower(strings.TrimSpace(d))]
	if !ok {
		return "", fmt.Errorf("bad direction %q", d)
	}
	return dir, nil
}

// quoteAppleScript wraps s in an AppleScript string literal.
func quoteAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
