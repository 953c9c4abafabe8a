package history

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"Hash", "Type", "Amount", "Date", "Status", "From", "To", "Block"}

// WriteCSV writes records with a header row. An empty list yields only the header.
func WriteCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		block := ""
		if r.BlockNumber != nil {
			block = strconv.FormatUint(*r.BlockNumber, 10)
		}
		row := []string{
			r.Hash,
			string(r.Type),
			r.Amount,
			time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339),
			string(r.Status),
			r.From,
			r.To,
			block,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
