package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"nachtplan/internal/config"
	"nachtplan/internal/consumer"
	"nachtplan/internal/logging"
)

var (
	relayURL string
	token    string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "planner",
	Short: "Plan a night out from the terminal",
	Long: `Chat with the itinerary planner. Answers stream in as they are written.

Examples:
  planner chat
  planner ask "Plan a night in Berlin with live jazz"

The relay URL and token come from PLANNER_RELAY_URL and PLANNER_BEARER_TOKEN
unless overridden by flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay-url", "", "Planner relay URL (overrides PLANNER_RELAY_URL)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (overrides PLANNER_BEARER_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log request details to stderr")
	rootCmd.AddCommand(chatCmd, askCmd)
}

func loadConfig() (*config.Consumer, error) {
	if relayURL != "" {
		if err := os.Setenv("PLANNER_RELAY_URL", relayURL); err != nil {
			return nil, err
		}
	}
	if token != "" {
		if err := os.Setenv("PLANNER_BEARER_TOKEN", token); err != nil {
			return nil, err
		}
	}
	return config.LoadConsumer()
}

func newSession(out io.Writer) (*consumer.Session, *renderer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	level := "error"
	if verbose {
		level = "debug"
	}
	logging.Init(logging.Config{Level: level, Format: "console", Output: os.Stderr})

	r := newRenderer(out)
	client := consumer.NewClient(cfg.RelayURL, cfg.BearerToken, nil)
	return consumer.NewSession(client, nil, consumer.WithListener(r.onUpdate)), r, nil
}

// runTurn submits one message. Ctrl-C during the turn cancels only the turn.
func runTurn(ctx context.Context, s *consumer.Session, r *renderer, text string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r.begin()
	err := s.Submit(turnCtx, text)
	r.finish(lastReply(s), err)
	return err
}
