package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every session and restore default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirmed {
			return errors.New("reset deletes all conversations; rerun with --yes to confirm")
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.store.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All conversations removed.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "confirm the reset")
	rootCmd.AddCommand(resetCmd)
}
