// Command console plays a project in the terminal against the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/novel-engine/pkg/state"
)

type consoleOptions struct {
	APIBaseURL string
	UserID     string
	Resume     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &consoleOptions{}

	cmd := &cobra.Command{
		Use:   "console [project-id]",
		Short: "Play a story project in the terminal",
		Long: `Play a story project in the terminal.

Start a new playthrough of a project, or resume one with --resume.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := newAPIClient(opts.APIBaseURL, &http.Client{Timeout: requestTimeout})
			pt, err := openPlaythrough(cmd.Context(), api, opts, args)
			if err != nil {
				return err
			}

			p := tea.NewProgram(NewConsoleUI(api, pt),
				tea.WithAltScreen(),
				tea.WithMouseCellMotion())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running program: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.APIBaseURL, "api", getEnv("API_BASE_URL", "http://localhost:8080"), "API base URL")
	cmd.Flags().StringVar(&opts.UserID, "user", getEnv("USER", "player"), "user id that owns new playthroughs")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "resume an existing playthrough by id")
	return cmd
}

func openPlaythrough(ctx context.Context, api *apiClient, opts *consoleOptions, args []string) (*state.Playthrough, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if !api.healthy(ctx) {
		return nil, errors.New("could not connect to API; please ensure the API is running (try: docker-compose up -d)")
	}

	if opts.Resume != "" {
		id, err := uuid.Parse(opts.Resume)
		if err != nil {
			return nil, fmt.Errorf("invalid playthrough id %q: %w", opts.Resume, err)
		}
		return api.getPlaythrough(ctx, id)
	}
	if len(args) == 0 {
		return nil, errors.New("a project id is required unless --resume is set")
	}
	return api.createPlaythrough(ctx, args[0], opts.UserID)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
