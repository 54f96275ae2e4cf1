package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/IntakePipe/internal/membership"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

func newLookupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <phone>",
		Short: "Report whether a phone number already has a stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			canonical := util.CanonicalizePhone(args[0])
			if canonical == "" {
				return fmt.Errorf("no digits in %q", args[0])
			}

			be := openBackends(cmd.Context(), cfg)
			defer be.Close()

			oracle := membership.NewOracle(be.rows, cfg.StudentsCollection, cfg.PatientsCollection)
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CallTimeout())
			defer cancel()
			if oracle.IsKnownMember(ctx, canonical) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: known member\n", canonical)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not a member\n", canonical)
			}
			return nil
		},
	}
}
