package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/belle2/basf2-sub109/src/pdg"
)

var pdgCmd = &cobra.Command{
	Use:   "pdg NAME|CODE...",
	Short: "Show particle properties",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		for _, arg := range args {
			p, err := pdg.Resolve(arg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s code=%-7d mass=%.6g GeV width=%.4g GeV ctau=%.4g cm charge=%+g",
				p.Name, p.Code, p.Mass, p.Width, p.CTau, p.Charge)
			switch {
			case pdg.IsFinalState(p.Code):
				fmt.Fprint(cmd.OutOrStdout(), " final-state")
			case cfg.IsResonance(p.Code, p.CTau):
				fmt.Fprint(cmd.OutOrStdout(), " resonance")
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pdgCmd)
}
