package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reelscout/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, the cache database and upstream sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			out := cmd.OutOrStdout()
			for _, r := range results {
				mark := "ok  "
				if !r.Passed {
					mark = "FAIL"
				}
				fmt.Fprintf(out, "[%s] %-16s %s\n", mark, r.Name, r.Detail)
			}
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}
