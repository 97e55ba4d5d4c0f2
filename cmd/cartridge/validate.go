package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
)

var errInvalid = errors.New("project is invalid")

type validateResult struct {
	File  string `json:"file"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a project file without modifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readProjectFile(args[0])
			if err != nil {
				return err
			}

			res := validateResult{File: args[0], Valid: true}
			if _, err := cartridge.ValidateJSON(data); err != nil {
				res.Valid = false
				res.Error = err.Error()
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				if err := json.NewEncoder(out).Encode(res); err != nil {
					return err
				}
			} else if res.Valid {
				fmt.Fprintf(out, "%s: valid\n", res.File)
			} else {
				fmt.Fprintf(out, "%s: invalid: %s\n", res.File, res.Error)
			}

			if !res.Valid {
				return errInvalid
			}
			return nil
		},
	}
}
