package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-provisioner/internal/ledger"
	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "inspect the run ledger",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list recent runs, newest first",
				Flags:  []cli.Flag{flagLimit},
				Action: runsList,
			},
			{
				Name:      "show",
				Usage:     "print the outcomes of one run",
				ArgsUsage: "RUN_ID",
				Action:    runsShow,
			},
			{
				Name:   "check",
				Usage:  "check the ledger database and its schema version",
				Action: runsCheck,
			},
			{
				Name:   "rollback",
				Usage:  "revert the latest ledger schema migration",
				Action: runsRollback,
			},
		},
	}
}

func openLedger(cCtx *cli.Context) (*ledger.Store, error) {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return nil, err
	}
	return ledger.Open(cCtx.Context, database.FromLedger(cfg.Ledger.Path, cfg.Ledger.WALMode, cfg.Ledger.BusyTimeout))
}

func runsList(cCtx *cli.Context) error {
	store, err := openLedger(cCtx)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // Read-only use

	runs, err := store.ListRuns(cCtx.Context, cCtx.Int(flagLimit.Name))
	if err != nil {
		return err
	}
	return writeRuns(cCtx.App.Writer, runs)
}

func runsShow(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("usage: glprovision runs show RUN_ID")
	}

	store, err := openLedger(cCtx)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // Read-only use

	outcomes, err := store.Outcomes(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}
	return writeOutcomes(cCtx.App.Writer, outcomes)
}

func runsCheck(cCtx *cli.Context) error {
	store, err := openLedger(cCtx)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // Read-only use

	if err := store.HealthCheck(cCtx.Context); err != nil {
		return err
	}
	applied, pending, err := store.SchemaStatus(cCtx.Context)
	if err != nil {
		return err
	}

	w := cCtx.App.Writer
	fmt.Fprintf(w, "ledger: %s (ok)\n", store.Path())
	for _, m := range applied {
		fmt.Fprintf(w, "applied  %s  %s\n", m.Version, m.AppliedAt.Local().Format(time.DateTime))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

func runsRollback(cCtx *cli.Context) error {
	store, err := openLedger(cCtx)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // Nothing left to flush

	version, err := store.RollbackSchema(cCtx.Context)
	if err != nil {
		return err
	}
	if version == "" {
		fmt.Fprintln(cCtx.App.Writer, "no ledger migration to revert")
		return nil
	}
	fmt.Fprintf(cCtx.App.Writer, "reverted ledger migration %s\n", version)
	return nil
}

func writeRuns(w io.Writer, runs []ledger.RunInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tPHASE\tSTARTED\tSTATE\tTOTAL\tSUCCESS\tERROR\tTIMEOUT\tACTIVATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			r.ID,
			r.Phase,
			r.StartedAt.Local().Format(time.DateTime),
			runState(r),
			r.Summary.Total,
			r.Summary.Success,
			r.Summary.Error,
			r.Summary.Timeout,
			r.Summary.Activated,
		)
	}
	return tw.Flush()
}

func runState(r ledger.RunInfo) string {
	switch {
	case r.Interrupted:
		return "interrupted"
	case r.Finished():
		return "finished"
	default:
		return "incomplete"
	}
}

func writeOutcomes(w io.Writer, outcomes []report.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tSTATUS\tTOKEN\tACTIVATED\tLATENCY\tERROR")
	for _, o := range outcomes {
		token := ""
		if o.Token != "" {
			token = o.TokenPreview()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.DeviceName, o.Status, token, o.Activated, o.Latency, o.ErrorMsg)
	}
	return tw.Flush()
}
