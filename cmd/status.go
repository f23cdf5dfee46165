package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"gitlab.com/nunet/nosana-node-monitor/internal/config"
	"gitlab.com/nunet/nosana-node-monitor/internal/jsonx"
	"gitlab.com/nunet/nosana-node-monitor/models"
)

var flagJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run one refresh cycle and print the node snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(commandContext(cmd), cfg.Poll.CycleTimeout+5*time.Second)
		defer cancel()

		snap, err := a.monitor.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), snap)
		}
		printSnapshot(cmd.OutOrStdout(), snap, time.Now())
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&flagJSON, "json", false, "print the snapshot as JSON")
}

func printJSON(w io.Writer, v interface{}) error {
	raw, err := jsonx.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func printSnapshot(w io.Writer, snap *models.Snapshot, now time.Time) {
	table := setupTable(w, []string{"Field", "Value"})
	table.AppendBulk([][]string{
		{"Node", snap.NodeAddress},
		{"Status", snap.Status.String()},
		{"State", orDash(snap.State)},
		{"Version", orDash(snap.Version)},
		{"Country", orDash(snap.Country)},
		{"Uptime", formatUptime(snap.Uptime, now)},
		{"Market", marketName(snap.Market)},
		{"Market rate", formatUSD(snap.Market.USDRewardPerHour, "/h")},
		{"Queue", formatQueue(snap.Queue)},
		{"GPU", orDash(snap.Specs.GPUModel)},
		{"Ping", formatFloat(snap.Network.PingMs, " ms")},
		{"Download", formatFloat(snap.Network.DownloadMbps, " Mbps")},
		{"Upload", formatFloat(snap.Network.UploadMbps, " Mbps")},
		{"Jobs", fmt.Sprintf("%d tracked, %d finalized", snap.Earnings.TrackedJobs, snap.Earnings.FinalizedJobs)},
		{"Runtime", formatSeconds(snap.Earnings.TotalRuntimeSeconds)},
		{"Earned", formatUSD(&snap.Earnings.TotalEarnedUSD, "")},
		{"Benchmark", formatBenchmark(snap.Earnings.LastBenchmark)},
		{"Fetched", humanize.RelTime(snap.FetchedAt, now, "ago", "from now")},
	})
	table.Render()

	fmt.Fprintln(w)
	sources := setupTable(w, []string{"Source", "OK", "Cached", "Error"})
	for _, row := range []struct {
		name string
		res  models.SourceResult
	}{
		{"info", snap.Sources.Info},
		{"specs", snap.Sources.Specs},
		{"markets", snap.Sources.Markets},
		{"jobs", snap.Sources.Jobs},
		{"account", snap.Sources.Account},
	} {
		sources.Append([]string{row.name, strconv.FormatBool(row.res.OK), strconv.FormatBool(row.res.Cached), orDash(row.res.Error)})
	}
	sources.Render()
}

func setupTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatFloat(f *float64, unit string) string {
	if f == nil {
		return "-"
	}
	return humanize.FormatFloat("#,###.##", *f) + unit
}

func formatUSD(f *float64, suffix string) string {
	if f == nil {
		return "-"
	}
	return "$" + humanize.FormatFloat("#,###.####", *f) + suffix
}

func formatSeconds(s float64) string {
	return (time.Duration(s) * time.Second).String()
}

func formatUptime(uptime *float64, now time.Time) string {
	if uptime == nil {
		return "-"
	}
	since := now.Add(-time.Duration(*uptime * float64(time.Second)))
	return strings.TrimSpace(humanize.RelTime(since, now, "", ""))
}

func formatQueue(q models.QueuePosition) string {
	if q.Position == nil {
		return "-"
	}
	if q.Length == nil {
		return strconv.Itoa(*q.Position)
	}
	return fmt.Sprintf("%d / %d", *q.Position, *q.Length)
}

func marketName(m models.Market) string {
	if m.Name != nil && *m.Name != "" {
		return *m.Name
	}
	return orDash(m.Address)
}

func formatBenchmark(b *models.BenchmarkResult) string {
	if b == nil {
		return "-"
	}
	return fmt.Sprintf("%s @ %s tok/s", b.Model, humanize.FormatFloat("#,###.##", b.MeanTokensPerSecond))
}
