// Package config provides the configuration schema and loader for the
// whisperd daemon. Values resolve in three layers: built-in defaults, an
// optional YAML file, then environment overrides.
package config

import (
	"time"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
)

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// STTBackend selects the transcription implementation.
type STTBackend string

const (
	// STTLocal runs whisper.cpp in-process.
	STTLocal STTBackend = "local"

	// STTHTTP posts captures to a remote whisper service.
	STTHTTP STTBackend = "http"
)

// IsValid reports whether b is a recognised backend.
func (b STTBackend) IsValid() bool {
	return b == STTLocal || b == STTHTTP
}

// Config is the root configuration for whisperd.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	Triggers TriggersConfig `yaml:"triggers"`
	Modes    ModesConfig    `yaml:"modes"`
	STT      STTConfig      `yaml:"stt"`
	LLM      LLMConfig      `yaml:"llm"`
	Speech   SpeechConfig   `yaml:"speech"`

	// Cues maps cue kinds (start, stop, command, dictation, muted,
	// unmuted, failure) to audio files. Missing kinds get synthesized
	// tones.
	Cues map[string]string `yaml:"cues"`
}

// ServerConfig holds the daemon's control and observability endpoints.
type ServerConfig struct {
	// SocketPath is the unix socket the control server listens on.
	SocketPath string `yaml:"socket_path"`

	// MetricsAddr is the TCP address serving /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the capture format and the rolling-buffer shape.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	FrameSize  int `yaml:"frame_size"`

	// WindowSeconds is the span of the rolling buffer.
	WindowSeconds float64 `yaml:"window_seconds"`

	// CooldownSeconds spaces trigger dispatches apart.
	CooldownSeconds float64 `yaml:"cooldown_seconds"`

	// TempDir receives the per-session WAV files. Empty means the system
	// temp directory.
	TempDir string `yaml:"temp_dir"`
}

// TriggersConfig lists the trigger phrases per mode.
type TriggersConfig struct {
	Command   []string `yaml:"command"`
	Dictation []string `yaml:"dictation"`
}

// ModeTuning is the per-mode endpointing quadruple, durations in seconds.
type ModeTuning struct {
	Energy             float64 `yaml:"energy"`
	MaxSilenceSeconds  float64 `yaml:"max_silence_seconds"`
	MinDurationSeconds float64 `yaml:"min_duration_seconds"`
	MaxDurationSeconds float64 `yaml:"max_duration_seconds"`
}

type ModesConfig struct {
	Command      ModeTuning `yaml:"command"`
	Dictation    ModeTuning `yaml:"dictation"`
	TriggerProbe ModeTuning `yaml:"trigger_probe"`
}

type STTConfig struct {
	Backend STTBackend `yaml:"backend"`

	// ModelPath locates the ggml model for the local backend.
	ModelPath string `yaml:"model_path"`

	// URL is the endpoint of the http backend.
	URL string `yaml:"url"`

	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	Language       string  `yaml:"language"`
}

type LLMConfig struct {
	Model string `yaml:"model"`

	// ProxyAddr routes API traffic through a SOCKS proxy when set.
	ProxyAddr string `yaml:"proxy_addr"`

	// APIKey comes from OPENAI_API_KEY only; secrets stay out of the file.
	APIKey string `yaml:"-"`
}

type SpeechConfig struct {
	// Voice names the macOS voice for the say fallback.
	Voice string `yaml:"voice"`

	// ServerURL points at the neural speech server. Empty means say only.
	ServerURL string `yaml:"server_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			SocketPath:  "/tmp/whisperd.sock",
			MetricsAddr: "127.0.0.1:9090",
			LogLevel:    LogInfo,
		},
		Audio: AudioConfig{
			SampleRate:      audio.SampleRate,
			FrameSize:       audio.FrameSize,
			WindowSeconds:   audio.WindowSeconds,
			CooldownSeconds: 4.0,
		},
		Triggers: TriggersConfig{
			Command:   []string{"jarvis"},
			Dictation: []string{"type", "dictate"},
		},
		Modes: ModesConfig{
			Command:      ModeTuning{Energy: 100, MaxSilenceSeconds: 1.0, MinDurationSeconds: 3.0, MaxDurationSeconds: 10},
			Dictation:    ModeTuning{Energy: 100, MaxSilenceSeconds: 2.0, MinDurationSeconds: 0.5, MaxDurationSeconds: 30},
			TriggerProbe: ModeTuning{Energy: 150, MaxSilenceSeconds: 0.5, MinDurationSeconds: 0, MaxDurationSeconds: 5},
		},
		STT: STTConfig{
			Backend:        STTLocal,
			ModelPath:      "third_party/whisper.cpp/models/ggml-medium.bin",
			TimeoutSeconds: 60,
			Language:       "auto",
		},
		LLM: LLMConfig{
			Model: "gpt-5-nano",
		},
		Speech: SpeechConfig{
			Voice: "Samantha",
		},
	}
}

// TuningFor converts the per-mode settings into the audio package's
// representation.
func (c *Config) TuningFor(mode audio.Mode) audio.Tuning {
	var mt ModeTuning
	switch mode {
	case audio.ModeCommand:
		mt = c.Modes.Command
	case audio.ModeDictation:
		mt = c.Modes.Dictation
	default:
		mt = c.Modes.TriggerProbe
	}
	return audio.Tuning{
		Energy:      mt.Energy,
		MaxSilence:  secs(mt.MaxSilenceSeconds),
		MinDuration: secs(mt.MinDurationSeconds),
		MaxDuration: secs(mt.MaxDurationSeconds),
	}
}

// Tunings returns the full mode table for the recorder.
func (c *Config) Tunings() map[audio.Mode]audio.Tuning {
	return map[audio.Mode]audio.Tuning{
		audio.ModeCommand:      c.TuningFor(audio.ModeCommand),
		audio.ModeDictation:    c.TuningFor(audio.ModeDictation),
		audio.ModeTriggerProbe: c.TuningFor(audio.ModeTriggerProbe),
	}
}

func (c *Config) Cooldown() time.Duration   { return secs(c.Audio.CooldownSeconds) }
func (c *Config) STTTimeout() time.Duration { return secs(c.STT.TimeoutSeconds) }

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
