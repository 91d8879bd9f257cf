package config

import (
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration: defaults, overlaid with the YAML
// file at path when one is given, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML over the defaults and validates the result.
// Useful in tests where configs are written as string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv applies environment overrides. These win over the file so a
// deployment can retarget endpoints without editing it.
func (c *Config) applyEnv() {
	c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("WHISPER_API_URL"); v != "" {
		c.STT.URL = v
		c.STT.Backend = STTHTTP
	}
	if v := os.Getenv("WHISPER_PATH"); v != "" {
		c.STT.ModelPath = v
	}
	if v := os.Getenv("VOICE_SERVER_URL"); v != "" {
		c.Speech.ServerURL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("WHISPERD_SOCKET"); v != "" {
		c.Server.SocketPath = v
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.SocketPath == "" {
		errs = append(errs, errors.New("server.socket_path is required"))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.window_seconds %.2f must be positive", cfg.Audio.WindowSeconds))
	}
	if cfg.Audio.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.cooldown_seconds %.2f must not be negative", cfg.Audio.CooldownSeconds))
	}

	errs = append(errs, validateTuning("modes.command", cfg.Modes.Command)...)
	errs = append(errs, validateTuning("modes.dictation", cfg.Modes.Dictation)...)
	errs = append(errs, validateTuning("modes.trigger_probe", cfg.Modes.TriggerProbe)...)

	if len(cfg.Triggers.Command) == 0 && len(cfg.Triggers.Dictation) == 0 {
		log.Warn("no trigger phrases configured; falling back to built-in phrases")
	}

	if !cfg.STT.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("stt.backend %q is invalid; valid values: local, http", cfg.STT.Backend))
	}
	if cfg.STT.Backend == STTLocal && cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required for the local backend"))
	}
	if cfg.STT.Backend == STTHTTP && cfg.STT.URL == "" {
		errs = append(errs, errors.New("stt.url is required for the http backend"))
	}
	if cfg.STT.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("stt.timeout_seconds %.2f must be positive", cfg.STT.TimeoutSeconds))
	}

	return errors.Join(errs...)
}

func validateTuning(prefix string, mt ModeTuning) []error {
	var errs []error
	if mt.Energy < 0 {
		errs = append(errs, fmt.Errorf("%s.energy %.2f must not be negative", prefix, mt.Energy))
	}
	if mt.MaxSilenceSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%s.max_silence_seconds %.2f must be positive", prefix, mt.MaxSilenceSeconds))
	}
	if mt.MinDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("%s.min_duration_seconds %.2f must not be negative", prefix, mt.MinDurationSeconds))
	}
	if mt.MaxDurationSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%s.max_duration_seconds %.2f must be positive", prefix, mt.MaxDurationSeconds))
	}
	if mt.MaxDurationSeconds > 0 && mt.MaxDurationSeconds < mt.MinDurationSeconds {
		errs = append(errs, fmt.Errorf("%s.max_duration_seconds %.2f is below min_duration_seconds %.2f", prefix, mt.MaxDurationSeconds, mt.MinDurationSeconds))
	}
	return errs
}
