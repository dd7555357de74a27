package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/general-ledger/api"
	"github.com/warp/general-ledger/ledger"
)

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return serve(a)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port (overrides config)")
	return cmd
}

func serve(a *app) error {
	handler := api.NewHandler(a.service)
	router := api.NewRouter(handler, api.Options{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		WriteRateLimit: a.cfg.Server.WriteRateLimit,
		WriteBurst:     a.cfg.Server.WriteBurst,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[Server] starting on http://localhost:%d (db: %s)", a.cfg.Server.Port, a.cfg.Database.Path)
		log.Printf("[Server] API available at http://localhost:%d/api", a.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Println("[Server] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Printf("[Server] stopped after %s", uptime(a.started))
	return nil
}

// =============================================================================
// MIGRATE / SEED
// =============================================================================

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			fmt.Printf("schema ready: %s\n", a.cfg.Database.Path)
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var (
		scenarioID string
		year       int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a demo scenario into the database",
		Example: "  server seed --scenario=chart-of-accounts\n" +
			"  server seed --scenario=first-year --year=2026",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := api.LoadScenario(cmd.Context(), a.service, scenarioID, api.DemoActor, year); err != nil {
				return err
			}
			fmt.Printf("loaded scenario %q\n", scenarioID)
			return nil
		},
	}
	cmd.Flags().StringVar(&scenarioID, "scenario", "chart-of-accounts", "Scenario to load")
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "Fiscal year the scenario is built around")
	return cmd
}

// =============================================================================
// YEAR-END
// =============================================================================

func newClosePeriodCmd() *cobra.Command {
	var periodID, actor string
	cmd := &cobra.Command{
		Use:   "close-period",
		Short: "Close a fiscal period (irreversible)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			p, err := a.service.ClosePeriod(cmd.Context(), ledger.PeriodID(periodID), ledger.UserID(actor))
			if err != nil {
				return err
			}
			fmt.Printf("closed %s (%s to %s)\n", p.Name, p.Start.Format(ledger.DateLayout), p.End.Format(ledger.DateLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&periodID, "period", "", "Fiscal period id")
	cmd.Flags().StringVar(&actor, "actor", "", "User performing the close")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newCarryForwardCmd() *cobra.Command {
	var from, to, actor string
	cmd := &cobra.Command{
		Use:   "carry-forward",
		Short: "Close result accounts and open balances in the next period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			res, err := a.service.CarryForward(cmd.Context(), ledger.PeriodID(from), ledger.PeriodID(to), ledger.UserID(actor))
			if err != nil {
				return err
			}
			fmt.Printf("net result: %s\n", res.NetResult.StringFixed(2))
			if res.Closing != nil {
				fmt.Printf("closing entry: %s\n", res.Closing.Reference)
			}
			if res.Opening != nil {
				fmt.Printf("opening entry: %s\n", res.Opening.Reference)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source (closed) fiscal period id")
	cmd.Flags().StringVar(&to, "to", "", "Destination (open) fiscal period id")
	cmd.Flags().StringVar(&actor, "actor", "", "User performing the carry-forward")
	for _, f := range []string{"from", "to", "actor"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

// =============================================================================
// REPORTS
// =============================================================================

func newTrialBalanceCmd() *cobra.Command {
	var periodID, from, to string
	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance for a period or date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			filter := ledger.ReportFilter{PeriodID: ledger.PeriodID(periodID)}
			if filter.Range.From, err = optionalDate(from); err != nil {
				return err
			}
			if filter.Range.To, err = optionalDate(to); err != nil {
				return err
			}
			tb, err := a.service.TrialBalance(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "CODE\tACCOUNT\tDEBIT\tCREDIT\tBALANCE\t")
			for _, r := range tb.Rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", r.Account.Code, r.Account.Name,
					r.Debit.StringFixed(2), r.Credit.StringFixed(2), r.Balance.StringFixed(2))
			}
			fmt.Fprintf(w, "\tTOTAL\t%s\t%s\t\t\n", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
			if err := w.Flush(); err != nil {
				return err
			}
			if !tb.Balanced {
				return fmt.Errorf("trial balance does not balance")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&periodID, "period", "", "Fiscal period id")
	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD)")
	return cmd
}

func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return ledger.ParseDate(s)
}
