package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gitlab.com/nunet/nosana-node-monitor/internal/config"
	"gitlab.com/nunet/nosana-node-monitor/models"
)

var (
	flagLedgerAll   bool
	flagLedgerLimit int
	flagLedgerJSON  bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Print the persisted job ledger of the configured node",
	Long:  `Reads the stored job records without contacting any upstream and prints them with the accumulated runtime and earnings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if err := config.ValidateNodeAddress(cfg.Node.Address); err != nil {
			return err
		}
		l, closeStore, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := commandContext(cmd)
		doc := l.Document(ctx)
		totals := l.Totals(ctx)
		records := ledgerRows(doc, flagLedgerAll, flagLedgerLimit)

		if flagLedgerJSON {
			return printJSON(cmd.OutOrStdout(), struct {
				Totals models.Earnings    `json:"totals"`
				Jobs   []models.JobRecord `json:"jobs"`
			}{totals, records})
		}
		printLedger(cmd.OutOrStdout(), records, totals, time.Now())
		return nil
	},
}

func init() {
	ledgerCmd.Flags().BoolVarP(&flagLedgerAll, "all", "a", false, "include jobs that have not finished")
	ledgerCmd.Flags().IntVarP(&flagLedgerLimit, "limit", "l", 0, "show at most this many jobs")
	ledgerCmd.Flags().BoolVar(&flagLedgerJSON, "json", false, "print the ledger as JSON")
}

// ledgerRows returns the records to show, most recently finished first.
func ledgerRows(doc models.LedgerDocument, all bool, limit int) []models.JobRecord {
	rows := make([]models.JobRecord, 0, len(doc.Jobs))
	for _, rec := range doc.Jobs {
		if rec.Finalized || all {
			rows = append(rows, rec)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TimeEnd != rows[j].TimeEnd {
			return rows[i].TimeEnd > rows[j].TimeEnd
		}
		return rows[i].JobID < rows[j].JobID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func printLedger(w io.Writer, rows []models.JobRecord, totals models.Earnings, now time.Time) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No jobs recorded yet")
	} else {
		table := setupTable(w, []string{"Job", "State", "Started", "Ended", "Runtime", "Rate", "Earned", "Benchmark"})
		for _, rec := range rows {
			rate, earned := rec.USDRewardPerHour, rec.EarnedUSD
			table.Append([]string{
				shortID(rec.JobID),
				rec.State,
				formatUnix(rec.TimeStart, now),
				formatUnix(rec.TimeEnd, now),
				formatSeconds(rec.RuntimeSeconds),
				formatUSD(&rate, "/h"),
				formatUSD(&earned, ""),
				formatBenchmark(rec.Benchmark),
			})
		}
		table.Render()
	}

	fmt.Fprintf(w, "\n%d jobs tracked, %d finalized, %s runtime, %s earned\n",
		totals.TrackedJobs, totals.FinalizedJobs,
		formatSeconds(totals.TotalRuntimeSeconds), formatUSD(&totals.TotalEarnedUSD, ""))
}

func formatUnix(ts int64, now time.Time) string {
	if ts <= 0 {
		return "-"
	}
	return humanize.RelTime(time.Unix(ts, 0), now, "ago", "from now")
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}
