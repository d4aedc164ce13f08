package main

import (
	"fmt"
	"pipetter/internal/incubator"

	"github.com/spf13/cobra"
)

// incubatorCmd groups the incubator register utilities
var incubatorCmd = &cobra.Command{
	Use:   "incubator",
	Short: "Incubator status code utilities",
}

var hexToBinaryCmd = &cobra.Command{
	Use:   "hex2bin [hex]",
	Short: "Convert a hex status code to 8-bit binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, err := incubator.HexToBinary(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), bits)
		return nil
	},
}

var baseTwelveCmd = &cobra.Command{
	Use:   "base12 [digits]",
	Short: "Convert a base-12 overview code to 15-bit binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, err := incubator.HexToBaseTwelve(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), bits)
		return nil
	},
}

var validateLocationCmd = &cobra.Command{
	Use:   "validate-location [nnn]",
	Short: "Check a three-digit storage location number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := incubator.ValidateStorageLocationNumber(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is a valid storage location\n", args[0])
		return nil
	},
}
