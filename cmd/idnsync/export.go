package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edusync/idnsync/pkg/config"
	"github.com/edusync/idnsync/pkg/export"
	"github.com/edusync/idnsync/pkg/source"
	"github.com/edusync/idnsync/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the event log or the persons view as CSV",
	Long: `Dump one source table as CSV, event log by default. With
--since, both the event log and the persons view are dumped: event rows
newer than the cut-off into one file, the person rows those events
reference into a second, both named after the table and the cut-off.

Examples:
  # Full event log of the first configured database
  idnsync export

  # Persons view of one database
  idnsync export --database inst07 --table persons_dirsync_v

  # Everything that happened since the semester import
  idnsync export --since "2024-09-01 00:00:00"`,
	RunE: runExport,
}

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize FILE...",
	Short: "Rewrite exported person CSVs with anonymous identities",
	Long: `Rewrite exported person CSVs so they can be shared as test
data: random names, logins, passwords and id numbers of the same shape,
consistent per person across all files of one invocation. Output goes
to FILE.anonymized next to each input.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnonymize,
}

func init() {
	exportCmd.Flags().String("database", "", "Tenant database to export (default: first configured)")
	exportCmd.Flags().String("table", types.EventTable, "Table to dump")
	exportCmd.Flags().String("since", "", `Cut-off time ("2006-01-02 15:04:05", dot instead of space works too)`)
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: table name)")
	exportCmd.Flags().String("delimiter", ";", "CSV field delimiter")
	exportCmd.MarkFlagsMutuallyExclusive("table", "since")

	anonymizeCmd.Flags().String("delimiter", ";", "CSV field delimiter")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(anonymizeCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := setupConfig(cmd, config.LoadSource)
	if err != nil {
		return err
	}

	dbName, _ := cmd.Flags().GetString("database")
	table, _ := cmd.Flags().GetString("table")
	sinceArg, _ := cmd.Flags().GetString("since")
	output, _ := cmd.Flags().GetString("output")
	delimArg, _ := cmd.Flags().GetString("delimiter")

	delim, err := delimiterRune(delimArg)
	if err != nil {
		return err
	}
	tenant, err := pickTenant(cfg, dbName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.Open(ctx, tenant.DSN, tenant.Database)
	if err != nil {
		return err
	}
	defer src.Close()

	exp := export.NewExporter(src, delim)
	if sinceArg == "" {
		return exportTable(ctx, exp, table, output)
	}
	return exportSince(ctx, exp, sinceArg, output)
}

func exportTable(ctx context.Context, exp *export.Exporter, table, output string) error {
	f, name, err := createOutput(output, table, "")
	if err != nil {
		return err
	}

	switch table {
	case types.EventTable:
		_, err = exp.Events(ctx, f, nil)
	case types.SourceView:
		_, err = exp.Persons(ctx, f)
	default:
		f.Close()
		return fmt.Errorf("unknown table %q", table)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s\n", name)
	return nil
}

// exportSince dumps events newer than the cut-off, then the person rows
// those events reference into a second file.
func exportSince(ctx context.Context, exp *export.Exporter, sinceArg, output string) error {
	cutoff, err := parseCutoff(sinceArg)
	if err != nil {
		return err
	}
	suffix := strings.ReplaceAll(sinceArg, " ", ".")

	f, name, err := createOutput(output, types.EventTable, suffix)
	if err != nil {
		return err
	}
	ids, err := exp.Events(ctx, f, &cutoff)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s\n", name)

	if len(ids) == 0 {
		return nil
	}

	pf, pname, err := createOutput("", types.SourceView, suffix)
	if err != nil {
		return err
	}
	err = exp.PersonsByID(ctx, pf, ids)
	if cerr := pf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s\n", pname)
	return nil
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	initLogging(verbose, false)

	delimArg, _ := cmd.Flags().GetString("delimiter")
	delim, err := delimiterRune(delimArg)
	if err != nil {
		return err
	}

	// One Anonymizer across all files keeps a person consistent even
	// when they appear in several of them.
	a := export.NewAnonymizer()
	for _, path := range args {
		if err := anonymizeFile(a, path, delim); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("✓ %s.anonymized\n", path)
	}
	return nil
}

func anonymizeFile(a *export.Anonymizer, path string, delim rune) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".anonymized")
	if err != nil {
		return err
	}
	if err := a.Rewrite(in, out, delim); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// createOutput opens the export target file. The name defaults to the
// table, gets the dotted cut-off as a suffix when one is set, and
// always ends in .csv.
func createOutput(output, table, suffix string) (*os.File, string, error) {
	name := output
	if name == "" {
		name = table
	}
	if suffix != "" {
		name += "." + suffix
	}
	if !strings.HasSuffix(name, ".csv") {
		name += ".csv"
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, "", err
	}
	return f, name, nil
}

// parseCutoff accepts the timestamp with a space or a dot between date
// and time, the dot form being shell friendlier.
func parseCutoff(s string) (time.Time, error) {
	normalized := strings.Replace(s, ".", " ", 1)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, normalized, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse cut-off time %q", s)
}

func delimiterRune(s string) (rune, error) {
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}

// pickTenant resolves the --database flag, defaulting to the first
// configured tenant.
func pickTenant(cfg *config.Config, name string) (types.Tenant, error) {
	tenants, err := cfg.Tenants()
	if err != nil {
		return types.Tenant{}, err
	}
	if name == "" {
		return tenants[0], nil
	}
	for _, t := range tenants {
		if t.Database == name {
			return t, nil
		}
	}
	return types.Tenant{}, fmt.Errorf("database %q is not configured", name)
}
