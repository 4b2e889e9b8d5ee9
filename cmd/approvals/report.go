package main

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"

	"approvalScope/internal/model"
)

// writeReport prints one line per exposure record to out and one warning
// per skipped item or failed owner to warn.
func writeReport(out, warn io.Writer, owners []common.Address, result model.ScanResult) error {
	for _, owner := range owners {
		res, ok := result[owner.Hex()]
		if !ok {
			continue
		}
		if res.Error != nil {
			if _, err := fmt.Fprintf(warn, "warning: could not scan %s (%s): %s\n", res.Owner, res.Error.Kind, res.Error.Error); err != nil {
				return err
			}
			continue
		}
		for _, failure := range res.Failures {
			if _, err := fmt.Fprintf(warn, "warning: skipped approval at block %d log %d token %s (%s): %s\n",
				failure.BlockNumber, failure.LogIndex, failure.TokenContract, failure.Kind, failure.Error); err != nil {
				return err
			}
		}
		for _, record := range res.Exposures {
			if _, err := fmt.Fprintln(out, formatRecord(record)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatRecord(record model.ExposureRecord) string {
	priceText := "unknown"
	exposureText := record.Exposure.String()
	if record.TokenPriceUSD.Valid {
		priceText = record.TokenPriceUSD.Decimal.String()
	}
	if record.ExposureUSD.Valid {
		exposureText = record.ExposureUSD.Decimal.String()
	}
	return fmt.Sprintf("approval on %s amount %s — price %s — exposure %s",
		record.TokenSymbol, record.ApprovalAmount.String(), priceText, exposureText)
}
