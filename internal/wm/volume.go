package wm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// volumeRe pulls the output volume out of `get volume settings`, which
// osascript prints as "output volume:47, input volume:…".
var volumeRe = regexp.MustCompile(`output volume:\s*(\d+)`)

// Volume reads the current system output volume as a 0-100 percentage.
func (c *Client) Volume(ctx context.Context) (int, error) {
	out, err := c.run(ctx, "osascript", "-e", "get volume settings")
	if err != nil {
		return 0, err
	}
	m := volumeRe.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("unparseable volume settings %q", out)
	}
	v, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, fmt.Errorf("unparseable volume settings %q", out)
	}
	return v, nil
}

// SetVolume sets the system output volume, clamped to 0-100.
func (c *Client) SetVolume(ctx context.Context, v int) error {
	script := fmt.Sprintf("set volume output volume %d", clampVolume(v))
	_, err := c.run(ctx, "osascript", "-e", script)
	return err
}

// ChangeVolume adjusts the output volume by a signed delta and returns the
// resulting level.
func (c *Client) ChangeVolume(ctx context.Context, delta int) (int, error) {
	cur, err := c.Volume(ctx)
	if err != nil {
		return 0, err
	}
	v := clampVolume(cur + delta)
	if err := c.SetVolume(ctx, v); err != nil {
		return 0, err
	}
	return v, nil
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
