package main

import (
	"fmt"

	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
	"github.com/spf13/cobra"
)

var stateFormat string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Read the reader once and print the encoded card state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := codec.FormatJSON
		switch stateFormat {
		case "json":
		case "cbor":
			format = codec.FormatCBOR
		default:
			return fmt.Errorf("unknown output format %q", stateFormat)
		}

		cfg, logger, logCloser, err := setup()
		if err != nil {
			return err
		}
		defer logCloser.Close()
		driver, err := newDriver(cfg, logger)
		if err != nil {
			return err
		}
		defer driver.Close()

		state, err := driver.Snapshot()
		if err != nil {
			return err
		}
		enc := codec.NewEncoder(codec.WithRawOIDs(cfg.Codec.IncludeRawOIDs))
		data, err := format.Marshal(enc.EncodeState(state))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if _, err := out.Write(data); err != nil {
			return err
		}
		if !format.Binary() {
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().StringVarP(&stateFormat, "output", "o", "json", "output format (json, cbor)")
}
