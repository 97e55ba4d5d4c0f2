package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	Format string // "text" | "json"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cartridge",
		Short: "Validate and sanitize story project files",
		Long: `Validate and sanitize story project files.

Project files may be JSON or YAML (.json, .yaml, .yml). YAML files are
converted to JSON before any checks, so both formats follow the same rules.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newSanitizeCommand(opts))
	return cmd
}
