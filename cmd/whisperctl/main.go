package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/ipc"
)

const usage = `usage: whisperctl [flags] <verb> [text]

verbs:
  status        show engine state
  command       force-start a command recording
  dictate       force-start a dictation recording
  stop          stop the active recording
  mute          mute the listener
  unmute        unmute the listener
  toggle-mute   flip the mute flag
  say <text>    speak text aloud
`

var verbs = map[string]ipc.Op{
	"status":      ipc.OpStatus,
	"command":     ipc.OpCommand,
	"dictate":     ipc.OpDictate,
	"stop":        ipc.OpStop,
	"mute":        ipc.OpMute,
	"unmute":      ipc.OpUnmute,
	"toggle-mute": ipc.OpToggleMute,
	"say":         ipc.OpSay,
}

func main() {
	socket := cli.StringP("socket", "s", "/tmp/whisperd.sock", "Daemon control socket")
	timeout := cli.DurationP("timeout", "t", 5*time.Second, "Request timeout")
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	op, ok := verbs[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown verb %q\n\n%s", args[0], usage)
		os.Exit(2)
	}

	req := ipc.Request{Op: op}
	if op == ipc.OpSay {
		req.Text = strings.Join(args[1:], " ")
		if req.Text == "" {
			fmt.Fprintln(os.Stderr, "say needs text")
			os.Exit(2)
		}
	}

	resp, err := ipc.Send(*socket, req, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "whisperd not running:", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintln(os.Stderr, "error:", resp.Error)
		os.Exit(1)
	}

	if resp.Status != nil {
		printStatus(resp.Status)
	} else {
		fmt.Println("ok")
	}
}

func printStatus(s *ipc.Status) {
	fmt.Printf("recording:      %v\n", s.Recording)
	fmt.Printf("muted:          %v\n", s.Muted)
	fmt.Printf("queue depth:    %d\n", s.QueueDepth)
	if s.LastProcessed.IsZero() {
		fmt.Println("last processed: never")
	} else {
		fmt.Printf("last processed: %s ago\n", time.Since(s.LastProcessed).Round(time.Second))
	}
}
