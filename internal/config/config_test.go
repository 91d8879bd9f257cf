package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, config.Validate(cfg))

	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 1024, cfg.Audio.FrameSize)
	assert.InDelta(t, 4.0, cfg.Audio.CooldownSeconds, 0)
	assert.Equal(t, []string{"jarvis"}, cfg.Triggers.Command)
	assert.InDelta(t, 100, cfg.Modes.Command.Energy, 0)
	assert.InDelta(t, 150, cfg.Modes.TriggerProbe.Energy, 0)
	assert.InDelta(t, 3.0, cfg.Modes.Command.MinDurationSeconds, 0)
}

func TestTuningConversion(t *testing.T) {
	cfg := config.Default()

	tn := cfg.TuningFor(audio.ModeCommand)
	assert.Equal(t, audio.Tuning{
		Energy:      100,
		MaxSilence:  time.Second,
		MinDuration: 3 * time.Second,
		MaxDuration: 10 * time.Second,
	}, tn)

	assert.Equal(t, 4*time.Second, cfg.Cooldown())
	assert.Equal(t, time.Minute, cfg.STTTimeout())
	assert.Len(t, cfg.Tunings(), 3)
}

func TestLoadFromReaderOverlaysDefaults(t *testing.T) {
	yaml := `
audio:
  cooldown_seconds: 2.5
modes:
  command:
    energy: 120
    max_silence_seconds: 1.0
    min_duration_seconds: 3.0
    max_duration_seconds: 10
triggers:
  command: ["computer"]
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.InDelta(t, 2.5, cfg.Audio.CooldownSeconds, 0)
	assert.InDelta(t, 120, cfg.Modes.Command.Energy, 0)
	assert.Equal(t, []string{"computer"}, cfg.Triggers.Command)

	// Everything else keeps its default.
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, []string{"type", "dictate"}, cfg.Triggers.Dictation)
	assert.InDelta(t, 150, cfg.Modes.TriggerProbe.Energy, 0)
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("audio:\n  frames_per_second: 10\n"))
	require.Error(t, err)
}

func TestValidateRejectsIncoherentValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"bad log level",
			"server:\n  log_level: loud\n",
			"log_level",
		},
		{
			"max below min",
			"modes:\n  dictation:\n    energy: 100\n    max_silence_seconds: 2\n    min_duration_seconds: 5\n    max_duration_seconds: 1\n",
			"below min_duration_seconds",
		},
		{
			"http backend without url",
			"stt:\n  backend: http\n",
			"stt.url",
		},
		{
			"zero sample rate",
			"audio:\n  sample_rate: 0\n",
			"sample_rate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WHISPER_API_URL", "http://stt.local:8080/transcribe")
	t.Setenv("METRICS_ADDR", "127.0.0.1:9999")
	t.Setenv("WHISPERD_SOCKET", "/tmp/test-whisperd.sock")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.STTHTTP, cfg.STT.Backend)
	assert.Equal(t, "http://stt.local:8080/transcribe", cfg.STT.URL)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.MetricsAddr)
	assert.Equal(t, "/tmp/test-whisperd.sock", cfg.Server.SocketPath)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load("/nonexistent/whisperd.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open")
}
