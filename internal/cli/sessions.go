package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"council-trader/internal/store"
)

var (
	sessionsTicker string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent stored analyses",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsTicker, "ticker", "", "filter by ticker")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum rows")
}

func runSessions(cmd *cobra.Command, _ []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	var records []*store.AnalysisRecord
	if sessionsTicker != "" {
		records, err = a.repo.LoadByTicker(ctx, strings.ToUpper(sessionsTicker), sessionsLimit)
	} else {
		records, err = a.repo.LoadRecent(ctx, sessionsLimit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no stored analyses")
		return nil
	}

	bold := color.New(color.Bold)
	fmt.Printf("%-12s %-8s %-6s %-6s %-10s %s\n",
		bold.Sprint("DATE"), bold.Sprint("TICKER"), bold.Sprint("ACTION"),
		bold.Sprint("CONF"), bold.Sprint("TOKENS"), bold.Sprint("GAPS"))
	for _, rec := range records {
		gaps := "-"
		if len(rec.CoverageGaps) > 0 {
			parts := make([]string, len(rec.CoverageGaps))
			for i, g := range rec.CoverageGaps {
				parts[i] = string(g)
			}
			gaps = strings.Join(parts, ",")
		}
		fmt.Printf("%-12s %-8s %-6s %-6.0f %-10d %s\n",
			rec.CreatedAt.Format("2006-01-02"), rec.Ticker, rec.Action,
			rec.Confidence, rec.TokensTotal, gaps)
	}
	return nil
}
