package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"fluid-gateway/internal/history"
)

// HistoryOptions select transaction records.
type HistoryOptions struct {
	Address string
	Type    string
	Status  string
	Limit   int
}

func (o HistoryOptions) filter() (history.Filter, error) {
	var f history.Filter
	if o.Type != "" {
		t, err := history.ParseType(o.Type)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	if o.Status != "" {
		s, err := history.ParseStatus(o.Status)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	return f, nil
}

// ShowHistory prints the newest records of an address.
func (a *App) ShowHistory(ctx context.Context, opts HistoryOptions, w io.Writer) error {
	records, err := a.listHistory(ctx, opts)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "no transactions found")
		return nil
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tType\tAmount\tStatus\tBlock\tHash")

	for _, r := range records {
		block := "-"
		if r.BlockNumber != nil {
			block = fmt.Sprintf("%d", *r.BlockNumber)
		}
		hash := r.Hash
		if r.Placeholder {
			hash += " (local)"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339),
			r.Type,
			sanitizeInline(r.Amount),
			r.Status,
			block,
			hash,
		)
	}

	return writer.Flush()
}

func (a *App) listHistory(ctx context.Context, opts HistoryOptions) ([]history.Record, error) {
	filter, err := opts.filter()
	if err != nil {
		return nil, err
	}

	c, err := a.build(ctx)
	if err != nil {
		return nil, err
	}
	defer c.close()

	account, err := resolveAccount(c.session, opts.Address)
	if err != nil {
		return nil, err
	}
	return c.history.List(ctx, account.Hex(), filter)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
