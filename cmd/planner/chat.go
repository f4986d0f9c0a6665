package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"nachtplan/internal/consumer"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive planning conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, r, err := newSession(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), s, r)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Ask a single question and print the streamed answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, r, err := newSession(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return runTurn(cmd.Context(), s, r, strings.Join(args, " "))
	},
}

func repl(ctx context.Context, in io.Reader, out io.Writer, s *consumer.Session, r *renderer) error {
	fmt.Fprintln(out, headerStyle.Render("nachtplan")+"  "+dimStyle.Render("/reset clears the conversation, /quit exits"))
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("you › "))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := s.Reset(); err != nil {
				fmt.Fprintln(out, warnStyle.Render(err.Error()))
			} else {
				fmt.Fprintln(out, dimStyle.Render("conversation cleared"))
			}
			continue
		}

		err := runTurn(ctx, s, r, line)
		var te *consumer.TurnError
		switch {
		case err == nil, errors.As(err, &te):
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
		default:
			return err
		}
	}
}
