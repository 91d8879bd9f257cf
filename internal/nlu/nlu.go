// Package nlu interprets command transcripts into desktop actions.
package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// Intent is the structured form of one spoken command.
type Intent struct {
	Action    string `json:"action"`
	App       string `json:"app"`
	Text      string `json:"text"`
	Direction string `json:"direction"`
	Amount    int    `json:"amount"`
}

const systemPrompt = `
You are the command interpreter for a hands-free macOS assistant.
Your ONLY job is to convert the user's utterance into ONE minimal JSON action.

GENERAL RULES:
1. Do NOT converse.
2. Do NOT answer questions yourself; questions become "say" with an empty text.
3. Do NOT add explanations.
4. Output ONLY JSON. No markdown.
5. Never invent values the user did not say.

OUTPUT FORMAT:
{
  "action": "<string>",
  "app": "<string or empty>",
  "text": "<string or empty>",
  "direction": "<string or empty>",
  "amount": <int or 0>
}

ACTIONS (canonical, snake_case):
- "open_app"           app = application name
- "focus_app"          app = application name
- "close_window"
- "toggle_fullscreen"
- "toggle_float"
- "focus_window"       direction = north|south|east|west
- "swap_window"        direction = north|south|east|west
- "move_space"         amount = target space number
- "type_text"          text = literal text to type
- "set_volume"         amount = 0-100
- "change_volume"      amount = signed delta
- "say"                text = sentence to speak aloud
- "unknown"            (if not classifiable)

NORMALIZATION:
- App names: canonical macOS names with capitalization ("Safari", "Google Chrome").
- Directions: map left/right/up/down to west/east/north/south.
- "louder"/"quieter" become "change_volume" with amount 10 or -10.
- If the meaning is unclear, action = "unknown".

Be strict and minimal. Do not generate text other than the JSON.
`

// Interpreter turns transcripts into intents via a chat model.
type Interpreter struct {
	client openai.Client
	model  string
}

func NewInterpreter(client openai.Client, model string) *Interpreter {
	if model == "" {
		model = openai.ChatModelGPT5Nano
	}
	return &Interpreter{client: client, model: model}
}

func (i *Interpreter) Interpret(ctx context.Context, transcript string) (Intent, error) {
	resp, err := i.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(transcript),
		},
		Model: i.model,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Intent{}, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return Intent{}, fmt.Errorf("empty message content")
	}

	log.Debug("interpreted", "raw", content)
	return parseIntent(content)
}

func parseIntent(content string) (Intent, error) {
	var out Intent
	if err := json.Unmarshal([]byte(stripFences(content)), &out); err != nil {
		return Intent{}, fmt.Errorf("unmarshal intent: %w (raw: %s)", err, content)
	}
	out.Action = strings.ToLower(strings.TrimSpace(out.Action))
	if out.Action == "" {
		out.Action = "unknown"
	}
	return out, nil
}

// stripFences removes a markdown code fence when the model adds one despite
// instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
