package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shelfscan/internal/isbn"
	"shelfscan/internal/records"
	"shelfscan/internal/services"
	"shelfscan/internal/session"
)

type lookupResult struct {
	ISBN      string   `json:"isbn"`
	ItemID    int64    `json:"item_id,omitempty"`
	Title     string   `json:"title,omitempty"`
	Creators  []string `json:"creators,omitempty"`
	Publisher string   `json:"publisher,omitempty"`
	Date      string   `json:"date,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func newLookupCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput, showMetrics bool

	cmd := &cobra.Command{
		Use:   "lookup <isbn>...",
		Short: "Look up ISBNs and store the records for upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(runCtx context.Context, a *app) error {
				if showMetrics {
					defer a.writeMetrics(cmd.ErrOrStderr())
				}
				results, err := a.lookup(runCtx, args)
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := writeJSONList(cmd, results); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), renderLookupTable(cmd.OutOrStdout(), results))
				}
				return lookupFailures(results)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	addMetricsFlag(cmd, &showMetrics)
	return cmd
}

// lookup scans every code and waits for all of them to resolve. Results keep
// the order of the first occurrence of each code.
func (a *app) lookup(ctx context.Context, args []string) ([]lookupResult, error) {
	var codes []string
	index := make(map[string]int)
	for _, raw := range args {
		code := isbn.Normalize(raw)
		if !isbn.Valid(code) {
			return nil, fmt.Errorf("%w: %q is not an ISBN", services.ErrValidation, raw)
		}
		if _, seen := index[code]; seen {
			continue
		}
		index[code] = len(codes)
		codes = append(codes, code)
	}

	for _, code := range codes {
		if err := a.session.Scan(code); err != nil {
			return nil, fmt.Errorf("lookup %s: %w", code, err)
		}
	}

	results := make([]lookupResult, len(codes))
	remaining := len(codes)
	err := a.await(ctx, func(ev session.Event) error {
		if ev.Kind != session.EventLookup {
			return nil
		}
		i, ok := index[ev.ISBN]
		if !ok || results[i].ISBN != "" {
			return nil
		}
		results[i] = resultFromEvent(ev)
		remaining--
		if remaining == 0 {
			return errStop
		}
		return nil
	})
	return results, err
}

func resultFromEvent(ev session.Event) lookupResult {
	res := lookupResult{ISBN: ev.ISBN, ItemID: ev.ItemID}
	if ev.Record != nil {
		res.Title = ev.Record.Title
		res.Publisher = ev.Record.Publisher
		res.Date = ev.Record.Date
		for _, c := range ev.Record.Creators {
			res.Creators = append(res.Creators, c.Name)
		}
	}
	if ev.Err != nil {
		res.Error = services.Classify(ev.Err)
	}
	return res
}

func renderLookupTable(out io.Writer, results []lookupResult) string {
	headers := []string{"ISBN", "Item", "Title", "Creators", "Result"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		item := "-"
		if r.ItemID > 0 {
			item = strconv.FormatInt(r.ItemID, 10)
		}
		outcome := "stored"
		if r.Error != "" {
			outcome = r.Error
		}
		rows = append(rows, []string{r.ISBN, item, r.Title, strings.Join(r.Creators, "; "), outcome})
	}
	return renderTable(out, headers, rows, []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft})
}

func lookupFailures(results []lookupResult) error {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d lookups failed", failed, len(results))
}

// recordTitle returns the display title of a stored payload.
func recordTitle(payload []byte) string {
	rec, err := records.Decode(payload)
	if err != nil {
		return "(unreadable)"
	}
	return rec.Title
}
