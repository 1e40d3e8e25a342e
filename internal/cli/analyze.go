package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"council-trader/internal/models"
	"council-trader/internal/store"
	"council-trader/internal/stream"
)

var (
	analyzeAsOf    string
	analyzeJSON    bool
	analyzeNoStore bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze TICKER",
	Short: "Run the full council over a ticker and print the decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeAsOf, "as-of", "", "analysis date YYYY-MM-DD (default today)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the decision as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeNoStore, "no-store", false, "do not persist the decision")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp(!analyzeNoStore)
	if err != nil {
		return err
	}
	defer a.close()

	asOf := time.Now()
	if analyzeAsOf != "" {
		asOf, err = time.Parse("2006-01-02", analyzeAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of date: %w", err)
		}
	}
	subject := models.Subject{Ticker: strings.ToUpper(args[0]), AsOf: asOf}

	// Ctrl-C requests cooperative cancellation; a second one kills the
	// process through the default handler.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := stream.NewReporter()
	runDone := make(chan error, 1)
	go func() {
		_, err := a.orchestrator.Run(ctx, subject, reporter)
		runDone <- err
	}()

	var sessionID string
	for ev := range reporter.Events() {
		sessionID = renderEvent(ev, sessionID)
	}
	runErr := <-runDone

	session, ok := a.registry.Get(sessionID)
	if !ok {
		return runErr
	}
	decision := session.Decision()
	if decision == nil {
		return runErr
	}

	if analyzeJSON {
		out, err := json.MarshalIndent(decision, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		printDecision(decision, session.Warnings())
	}

	if a.repo != nil {
		rec := store.RecordFromDecision(decision, session.Reports(), session.Warnings(), session.Ledger.Total())
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.repo.SaveAnalysis(saveCtx, rec); err != nil {
			color.Yellow("warning: decision not persisted: %v", err)
		}
	}
	return runErr
}

// renderEvent prints one stream event and tracks the session id from
// the terminal done event.
func renderEvent(ev stream.Event, sessionID string) string {
	switch ev.Type {
	case stream.EventConnected:
		color.Cyan("connected")
	case stream.EventProgress:
		if len(ev.Tools) > 0 {
			fmt.Printf("%s %s [%s]\n", color.BlueString("●"), ev.Message, strings.Join(ev.Tools, ", "))
		} else {
			fmt.Printf("%s %s\n", color.BlueString("●"), ev.Message)
		}
	case stream.EventToolsCompleted:
		color.Green("✓ analyst council complete")
	case stream.EventContent:
		fmt.Println(ev.Chunk)
	case stream.EventDone:
		color.Green("✓ done")
		return ev.ConversationID
	case stream.EventError:
		color.Red("✗ %s", ev.Message)
	}
	return sessionID
}

func printDecision(d *models.FinalDecision, warnings []string) {
	actionColor := color.New(color.FgYellow, color.Bold)
	switch d.Action {
	case models.ActionBuy:
		actionColor = color.New(color.FgGreen, color.Bold)
	case models.ActionSell:
		actionColor = color.New(color.FgRed, color.Bold)
	}

	fmt.Println()
	fmt.Printf("%s %s  (confidence %.0f)\n", actionColor.Sprint(d.Action), color.New(color.Bold).Sprint(d.Ticker), d.Confidence)
	if d.Entry > 0 {
		fmt.Printf("  entry %.2f", d.Entry)
		if d.Target > 0 {
			fmt.Printf("  target %.2f", d.Target)
		}
		if d.Stop > 0 {
			fmt.Printf("  stop %.2f", d.Stop)
		}
		fmt.Println()
	}
	fmt.Println()
	fmt.Println(d.Rationale)
	if len(d.CoverageGaps) > 0 {
		gaps := make([]string, len(d.CoverageGaps))
		for i, g := range d.CoverageGaps {
			gaps[i] = string(g)
		}
		color.Yellow("\ncoverage gaps: %s", strings.Join(gaps, ", "))
	}
	for _, w := range warnings {
		color.Yellow("warning: %s", w)
	}
}
