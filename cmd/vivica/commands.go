package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nstogner/vivica/pkg/chat"
	"github.com/nstogner/vivica/pkg/config"
	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/server"
	"github.com/nstogner/vivica/pkg/tui"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the terminal chat client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// The TUI owns the terminal.
			if logFile == "" {
				logFile = "vivica.log"
			}
			return setupLogging(os.Stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return tui.Run(tui.New(ctx, a.state, a.chat, a.registry, tui.WithCredentialSink(saveCredential)))
		},
	}
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Addr
			}
			srv := server.New(a.state, a.chat, a.registry, server.WithCredentialSink(saveCredential))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $VIVICA_ADDR or :8080)")
	return cmd
}

func newAskCmd() *cobra.Command {
	var (
		profileID string
		fresh     bool
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if profileID != "" {
				if err := a.state.SelectProfile(ctx, profileID); err != nil {
					return err
				}
			}
			if fresh {
				if _, err := a.state.NewWorkspace(ctx); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			p := a.state.ActiveProfile()
			label := color.New(color.FgMagenta, color.Bold).SprintFunc()
			fmt.Fprintf(out, "%s ", label(p.Name+":"))

			updates := a.state.Subscribe()
			defer a.state.Unsubscribe(updates)

			// The reply is whatever follows the current last message, read before
			// the turn starts appending.
			var before string
			if c, ok := a.state.ActiveConversation(); ok && len(c.Messages) > 0 {
				before = c.Messages[len(c.Messages)-1].ID
			}

			type result struct {
				turn *chat.Turn
				err  error
			}
			done := make(chan result, 1)
			go func() {
				turn, err := a.chat.Send(ctx, strings.Join(args, " "))
				done <- result{turn, err}
			}()

			// printed tracks how much of the new reply has been written.
			printed := 0
			echo := func() {
				c, ok := a.state.ActiveConversation()
				if !ok || len(c.Messages) == 0 {
					return
				}
				last := c.Messages[len(c.Messages)-1]
				if last.ID == before || last.Role != domain.RoleAssistant || last.IsError || len(last.Content) <= printed {
					return
				}
				fmt.Fprint(out, last.Content[printed:])
				printed = len(last.Content)
			}

			for {
				select {
				case <-updates:
					echo()
				case r := <-done:
					if r.err != nil {
						return r.err
					}
					if r.turn == nil {
						return errors.New("nothing to send")
					}
					echo()
					fmt.Fprintln(out)
					if r.turn.Assistant.IsError {
						return errors.New(strings.TrimPrefix(r.turn.Assistant.Content, "Error: "))
					}
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&profileID, "profile", "", "profile id to answer as")
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new conversation")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, s, err := loadState(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			active := s.ActiveProfile().ID
			bold := color.New(color.Bold).SprintFunc()
			for _, p := range s.Profiles() {
				marker := " "
				name := p.Name
				if p.ID == active {
					marker = "*"
					name = bold(name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s  (%s)\n", marker, p.ID, name, p.Model)
			}
			return nil
		},
	}
}

func newModelsCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List selectable models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			models := a.registry.Models()
			if live {
				// Gemini's own catalogue in place of the built-in list.
				catalogue, err := a.primary.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing Gemini models: %w", err)
				}
				models = append(catalogue, models[len(domain.GeminiModels):]...)
			}

			external := color.New(color.FgCyan).SprintFunc()
			for _, m := range models {
				id := m.ID
				if !domain.IsPrimaryModel(m.ID) {
					id = external(id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", id, m.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "query the Gemini API instead of the built-in list")
	return cmd
}

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase all profiles, conversations and settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to erase data without --yes")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := resetStore(cmd.Context(), st)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records from %s\n", n, cfg.DataDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm erasing all data")
	return cmd
}
