package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
)

type sanitizeResult struct {
	File    string             `json:"file"`
	Repairs []cartridge.Repair `json:"repairs"`
	Valid   bool               `json:"valid"`
	Error   string             `json:"error,omitempty"`
	Written string             `json:"written,omitempty"`
}

func newSanitizeCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sanitize <file>",
		Short: "Repair dangling references and report every change",
		Long: `Repair dangling references in a project file.

Sanitize never removes scenes, characters or places. Without --output it
only reports the repairs it would make.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readProjectFile(args[0])
			if err != nil {
				return err
			}
			var p cartridge.Project
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("failed to decode project: %w", err)
			}

			clean, repairs := cartridge.Sanitize(p.Cartridge)
			p.Cartridge = clean

			res := sanitizeResult{File: args[0], Repairs: repairs, Valid: true}
			if res.Repairs == nil {
				res.Repairs = []cartridge.Repair{}
			}
			if err := cartridge.ValidateProject(&p); err != nil {
				res.Valid = false
				res.Error = err.Error()
			}
			if output != "" {
				if err := writeProjectFile(output, &p); err != nil {
					return err
				}
				res.Written = output
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return json.NewEncoder(out).Encode(res)
			}
			for _, r := range res.Repairs {
				if r.TriggerID != "" {
					fmt.Fprintf(out, "%s %s/%s: %s\n", r.Kind, r.SceneID, r.TriggerID, r.Detail)
				} else {
					fmt.Fprintf(out, "%s %s: %s\n", r.Kind, r.SceneID, r.Detail)
				}
			}
			fmt.Fprintf(out, "%d repair(s)\n", len(res.Repairs))
			if !res.Valid {
				fmt.Fprintf(out, "still invalid: %s\n", res.Error)
			}
			if res.Written != "" {
				fmt.Fprintf(out, "wrote %s\n", res.Written)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the sanitized project to this file")
	return cmd
}
