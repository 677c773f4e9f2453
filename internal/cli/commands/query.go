package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fraser29/zfmrf/internal/cli/config"

	// drivers for index queries.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// openIndexReadOnly opens the subject index for querying. The sqlite index
// is opened read-only; a postgres index runs with whatever rights the
// configured role has.
func openIndexReadOnly(cfg *config.Config) (db *sql.DB, driver string, err error) {
	driver, dsn, err := cfg.IndexDSN()
	if err != nil {
		return nil, "", err
	}
	if driver == "sqlite" {
		if _, err := os.Stat(dsn); os.IsNotExist(err) {
			return nil, "", fmt.Errorf("index not found at %s (run 'zfmrf list' first)", dsn)
		}
		dsn += "?mode=ro"
	}
	db, err = sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open index: %w", err)
	}
	return db, driver, nil
}

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the subject index",
		Long: `Query the subject index database directly.

Execute SQL against the index to answer questions the fixed commands
do not: subjects per scanner, exams per month, action run history.
Supports multiple output formats for scripting.

When invoked without arguments on a terminal, enters interactive
REPL mode.`,
		Example: `  # Execute SQL directly
  zfmrf query "SELECT subject_id, study_date FROM subjects ORDER BY study_date"

  # List available tables
  zfmrf query tables

  # Show schema for a table
  zfmrf query schema subjects

  # Find subjects by patient
  zfmrf query search "smith"

  # Output as JSON
  zfmrf query "SELECT * FROM action_runs" --format json

  # Interactive mode
  zfmrf query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	cmd.AddCommand(newQueryTablesCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))
	cmd.AddCommand(newQuerySearchCommand(opts))

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx := NewCommandContextWithoutIndex(cmd)

	// Determine SQL source
	var sqlQuery string

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		// Read from stdin (piped input)
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, cmdCtx.Cfg, opts)
	}

	return executeAndRender(cmd.Context(), cmd, cmdCtx.Cfg, sqlQuery, opts.Format)
}

func executeAndRender(ctx context.Context, cmd *cobra.Command, cfg *config.Config, sqlQuery, format string) error {
	db, _, err := openIndexReadOnly(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return renderResults(cmd.OutOrStdout(), rows, format)
}

// newQueryTablesCommand creates the tables subcommand.
func newQueryTablesCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List all tables in the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutIndex(cmd)
			return listTables(cmd, cmdCtx.Cfg, opts.Format)
		},
	}
}

// newQuerySchemaCommand creates the schema subcommand.
func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show schema for a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutIndex(cmd)
			return showSchema(cmd, cmdCtx.Cfg, args[0], opts.Format)
		},
	}
}

// newQuerySearchCommand creates the search subcommand.
func newQuerySearchCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search indexed subjects",
		Long: `Search the index by substring.

Matches against subject IDs, patient names and patient IDs.`,
		Example: `  zfmrf query search "smith"
  zfmrf query search "MR88" --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutIndex(cmd)
			return searchIndex(cmd, cmdCtx.Cfg, args[0], opts.Format)
		},
	}
}

func searchIndex(cmd *cobra.Command, cfg *config.Config, term, format string) error {
	db, driver, err := openIndexReadOnly(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	pattern := "%" + term + "%"
	var rows *sql.Rows
	if driver == "pgx" {
		rows, err = db.QueryContext(cmd.Context(), `
			SELECT subject_id, patient_name, patient_id, study_date, exam_id
			FROM subjects
			WHERE subject_id ILIKE $1 OR patient_name ILIKE $1 OR patient_id ILIKE $1
			ORDER BY subject_id
			LIMIT 50
		`, pattern)
	} else {
		rows, err = db.QueryContext(cmd.Context(), `
			SELECT subject_id, patient_name, patient_id, study_date, exam_id
			FROM subjects
			WHERE subject_id LIKE ?1 OR patient_name LIKE ?1 OR patient_id LIKE ?1
			ORDER BY subject_id
			LIMIT 50
		`, pattern)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return renderResults(cmd.OutOrStdout(), rows, format)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
