package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ao3extract/internal/validator"
)

var errReportInvalid = errors.New("report failed verification")

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <report>",
		Short: "Check a rendered report against its signature block",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}

			result := validator.ValidateReport(string(content))
			if !result.IsValid {
				result.PrintErrors(os.Stdout)
				return errReportInvalid
			}

			fmt.Printf("✅ %s is intact (%d works, generated %s)\n",
				args[0], result.Report.Works, result.Report.LastModify.Format(time.RFC3339))

			return nil
		},
	}
}
