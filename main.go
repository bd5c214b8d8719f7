// ABOUTME: Entry point for the Voxline voice chat client
// ABOUTME: Parses CLI flags and starts the chat TUI
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/voxline/voxline-go/internal/config"
	"github.com/voxline/voxline-go/internal/ui"
	"github.com/voxline/voxline-go/pkg/voxline"
)

var (
	gatewayAddr = flag.String("gateway", "", "Live voice gateway address (overrides VOXLINE_GATEWAY)")
	voiceName   = flag.String("voice", "", "Prebuilt voice name (overrides VOXLINE_VOICE)")
	logFile     = flag.String("log-file", "voxline.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs  = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	// Determine if we should use TUI or streaming logs
	useTUI := !(*noTUI || *streamLogs)

	logger, err := buildLogger(*logFile, useTUI)
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if *gatewayAddr != "" {
		cfg.GatewayAddr = *gatewayAddr
	}
	if *voiceName != "" {
		cfg.Voice = *voiceName
	}

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls

	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(controls)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				logger.Error("tui exited", zap.Error(err))
			}
			select {
			case controls.Quit <- struct{}{}:
			default:
			}
		}()
	}

	// Helper to update TUI
	updateTUI := func(msg tea.Msg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	ctx := context.Background()

	client, err := voxline.New(ctx, voxline.Config{
		APIKey:            cfg.APIKey,
		GatewayAddr:       cfg.GatewayAddr,
		SystemInstruction: cfg.SystemInstruction,
		Voice:             cfg.Voice,
		LiveModel:         cfg.LiveModel,
		TextModel:         cfg.TextModel,
		SpeechModel:       cfg.SpeechModel,
		ImageEditModel:    cfg.ImageEditModel,
		ImageGenModel:     cfg.ImageGenModel,
		Logger:            logger,
		OnConnecting: func() {
			updateTUI(ui.StatusMsg{SessionState: "connecting"})
		},
		OnActive: func() {
			updateTUI(ui.StatusMsg{SessionState: "active"})
		},
		OnReplying: func(on bool) {
			updateTUI(ui.StatusMsg{Replying: &on})
		},
		OnError: func(msg string) {
			if msg != "" {
				logger.Warn("surfaced error", zap.String("message", msg))
			}
			updateTUI(ui.StatusMsg{Error: &msg})
		},
		OnLivePreview: func(in, out string) {
			updateTUI(ui.PreviewMsg{Input: in, Output: out})
		},
		OnHistoryChanged: func(msgs []voxline.Message) {
			updateTUI(ui.HistoryMsg(msgs))
		},
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	if !useTUI {
		logger.Info("voxline started",
			zap.String("gateway", cfg.GatewayAddr),
			zap.String("voice", cfg.Voice))
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if controls != nil {
		runControlLoop(ctx, client, controls, updateTUI, sigChan, logger)
	} else {
		<-sigChan
		logger.Info("shutdown signal received")
	}

	if err := client.Close(); err != nil {
		logger.Warn("error closing client", zap.Error(err))
	}
	if tuiProg != nil {
		tuiProg.Quit()
	}
	logger.Info("voxline stopped")
}

// runControlLoop consumes user intents from the TUI until quit.
func runControlLoop(ctx context.Context, client *voxline.Client, controls *ui.Controls, updateTUI func(tea.Msg), sigChan chan os.Signal, logger *zap.Logger) {
	for {
		select {
		case text := <-controls.SendText:
			go func() {
				// Errors reach the TUI through OnError.
				_ = client.SendText(ctx, text)
			}()

		case prompt := <-controls.GenerateImage:
			go func() {
				_ = client.GenerateImage(ctx, prompt)
			}()

		case <-controls.ToggleVoice:
			if client.VoiceActive() {
				client.StopVoice()
				updateTUI(ui.StatusMsg{SessionState: "idle"})
			} else {
				go func() {
					if err := client.StartVoice(ctx); err != nil {
						updateTUI(ui.StatusMsg{SessionState: "error"})
					}
				}()
			}

		case <-controls.ClearHistory:
			client.ClearHistory()

		case <-controls.ClearError:
			client.ClearError()
			updateTUI(ui.StatusMsg{SessionState: client.SessionState()})

		case <-controls.Quit:
			logger.Info("received quit signal from TUI")
			return

		case <-sigChan:
			logger.Info("shutdown signal received")
			return
		}
	}
}

// buildLogger writes structured logs to the given file, and also to
// stderr when the TUI is disabled.
func buildLogger(path string, tuiActive bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if tuiActive {
		zcfg.OutputPaths = []string{path}
		zcfg.ErrorOutputPaths = []string{path}
	} else {
		zcfg.OutputPaths = []string{"stderr", path}
		zcfg.ErrorOutputPaths = []string{"stderr", path}
	}
	return zcfg.Build()
}
