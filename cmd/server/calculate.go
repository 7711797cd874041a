package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/accrual-engine/balanceapi"
	"github.com/warp/accrual-engine/events"
	"github.com/warp/accrual-engine/generic"
)

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Recalculate accruals for one change event read from a file",
	Long: `Reads one change event (the same JSON the consumer reads) from --file, or
stdin when the file is "-", and prints the recomputed rows as JSON.

With --dry-run nothing is persisted and no lock is taken.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		path, _ := cmd.Flags().GetString("file")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		data, err := readInput(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		evt, action, err := events.ParseChangeEvent(data)
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		engine, err := buildEngine(ctx, cfg, store)
		if err != nil {
			return err
		}
		defer engine.Close()

		record := evt.TimeRecord.ToTimeRecord()
		var rows []generic.AccrualRecord
		if dryRun {
			rows, err = engine.calculator.Calculate(ctx, record, action)
		} else {
			rows, err = engine.recalculator.Handle(ctx, record, action)
		}
		if err != nil {
			return err
		}

		payload := make([]balanceapi.AccrualPayload, len(rows))
		for i, r := range rows {
			payload[i] = balanceapi.ToPayload(r)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	},
}

func init() {
	rootCmd.AddCommand(calculateCmd)
	calculateCmd.Flags().StringP("file", "f", "-", `Change event JSON file ("-" for stdin)`)
	calculateCmd.Flags().Bool("dry-run", false, "Print the result without saving it")
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read change event: %w", err)
	}
	return data, nil
}
