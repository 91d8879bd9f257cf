package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/config"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/cue"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/daemon"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/nlu"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/notify"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/observe"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/proxy"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/tts"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/wm"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "Config file path")
	proxyAddr := cli.StringP("proxy", "p", "", "SOCKS proxy address for API traffic")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *proxyAddr != "" {
		cfg.LLM.ProxyAddr = *proxyAddr
	}

	shutdownMetrics, err := observe.InitProvider(context.Background(), "whisperd", "")
	if err != nil {
		log.Error("Failed to init metrics", "err", err)
		os.Exit(1)
	}
	defer shutdownMetrics(context.Background())

	if err := audio.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer audio.Terminate()

	log.Debug("Loaded audio backend")

	sttc, closeSTT, err := buildSTT(cfg)
	if err != nil {
		log.Error("Failed to init transcriber", "err", err)
		os.Exit(1)
	}
	defer closeSTT()

	log.Debug("Loaded transcriber", "backend", string(cfg.STT.Backend))

	var llmOpts []option.RequestOption
	if cfg.LLM.APIKey != "" {
		llmOpts = append(llmOpts, option.WithAPIKey(cfg.LLM.APIKey))
	} else {
		log.Warn("OPENAI_API_KEY not set; commands will not be interpreted")
	}
	if cfg.LLM.ProxyAddr != "" {
		httpClient, err := proxy.NewSocksClient(cfg.LLM.ProxyAddr, 0)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.LLM.ProxyAddr, "err", err)
			os.Exit(1)
		}
		llmOpts = append(llmOpts, option.WithHTTPClient(httpClient))
		log.Debug("Loaded proxy")
	}
	client := openai.NewClient(llmOpts...)

	player, err := cue.NewPlayer(cue.Config{Assets: cueAssets(cfg)})
	if err != nil {
		log.Error("Failed to build cue player", "err", err)
		os.Exit(1)
	}

	speaker := buildSpeaker(cfg, player)

	eng, err := daemon.New(daemon.Options{
		Config:      cfg,
		STT:         sttc,
		Interpreter: nlu.NewInterpreter(client, cfg.LLM.Model),
		Desktop:     wm.New(),
		Speaker:     speaker,
		Cues:        player,
		Notifier:    notify.New("whisperd"),
	})
	if err != nil {
		log.Error("Failed to assemble engine", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil {
		log.Error("Engine stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Shut down cleanly")
}

func buildSTT(cfg *config.Config) (stt.Client, func(), error) {
	switch cfg.STT.Backend {
	case config.STTHTTP:
		c := stt.NewHTTP(cfg.STT.URL, stt.HTTPOptions{Timeout: cfg.STTTimeout()})
		return c, func() {}, nil
	default:
		w, err := stt.NewWhisper(cfg.STT.ModelPath, stt.WhisperOptions{Language: cfg.STT.Language})
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil
	}
}

func buildSpeaker(cfg *config.Config, player *cue.Player) tts.Speaker {
	say := tts.NewSay(cfg.Speech.Voice)
	if cfg.Speech.ServerURL == "" {
		return say
	}
	neural := tts.NewNeural(cfg.Speech.ServerURL, player, tts.NeuralOptions{Voice: cfg.Speech.Voice})
	return tts.NewFallback(neural, say)
}

func cueAssets(cfg *config.Config) map[cue.Kind]string {
	assets := make(map[cue.Kind]string, len(cfg.Cues))
	for name, path := range cfg.Cues {
		kind, ok := cue.ParseKind(name)
		if !ok {
			log.Warn("Unknown cue kind in config", "kind", name)
			continue
		}
		assets[kind] = path
	}
	return assets
}
