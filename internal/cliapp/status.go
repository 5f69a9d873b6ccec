package cliapp

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"toolhost/internal/data/history"
	"toolhost/internal/mcp/runtime"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates the "status" subcommand.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the resolved project, policy and tool counts",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	addSessionFlags(cmd)
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	session, _, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close(context.Background()) }()

	status := session.Status()
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if status.Tools == nil {
			status.Tools = []string{}
		}
		return writeJSON(out, status)
	}

	st := newStyles(cmd, out)
	fmt.Fprintln(out, st.title.Render("toolhost "+status.Project))
	fmt.Fprintln(out, st.label.Render("Root:")+status.Root)
	fmt.Fprintln(out, st.label.Render("Context:")+status.Context)
	fmt.Fprintln(out, st.label.Render("Modes:")+dashIfEmpty(strings.Join(status.Modes, ", ")))
	fmt.Fprintln(out, st.label.Render("Schema profile:")+status.SchemaProfile)
	fmt.Fprintln(out, st.label.Render("Registered:")+strconv.Itoa(status.RegisteredTools))
	fmt.Fprintln(out, st.label.Render("Visible:")+strconv.Itoa(status.VisibleTools))
	for _, name := range status.Tools {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	return nil
}

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool calls recorded by the server",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().String("project", "", "Project root directory")
	cmd.Flags().IntP("limit", "n", 20, "Number of calls to show")
	cmd.Flags().String("tool", "", "Print outcome counts for this tool instead of recent calls")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

type historyRow struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Context   string    `json:"context"`
	Modes     []string  `json:"modes"`
	Outcome   string    `json:"outcome"`
	ErrorCode string    `json:"error_code,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("project") {
		cfg.Session.Project, _ = cmd.Flags().GetString("project")
	}
	project, err := runtime.ResolveProjectContext(cfg, path)
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(project.HistoryPath); os.IsNotExist(err) {
		fmt.Fprintln(out, newStyles(cmd, out).muted.Render("No call history at "+project.HistoryPath+"."))
		return nil
	}

	store, err := history.Open(project.HistoryPath)
	if err != nil {
		return exitError(exitRuntime, "open history: %v", err)
	}
	defer store.Close()

	asJSON, _ := cmd.Flags().GetBool("json")
	if tool, _ := cmd.Flags().GetString("tool"); strings.TrimSpace(tool) != "" {
		counts, err := store.CountByOutcome(strings.TrimSpace(tool))
		if err != nil {
			return exitError(exitRuntime, "count calls: %v", err)
		}
		if asJSON {
			return writeJSON(out, counts)
		}
		st := newStyles(cmd, out)
		fmt.Fprintf(out, "%s: %s, %s\n", tool,
			st.success.Render(fmt.Sprintf("%d success", counts[history.OutcomeSuccess])),
			st.failure.Render(fmt.Sprintf("%d error", counts[history.OutcomeError])))
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := store.Recent(limit)
	if err != nil {
		return exitError(exitRuntime, "read history: %v", err)
	}

	rows := make([]historyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, historyRow{
			ID:        rec.ID,
			Tool:      rec.Tool,
			Context:   rec.Context,
			Modes:     rec.Modes,
			Outcome:   rec.Outcome,
			ErrorCode: rec.ErrorCode,
			StartedAt: rec.StartedAt,
			Duration:  rec.Duration.Round(time.Microsecond).String(),
		})
	}
	if asJSON {
		return writeJSON(out, rows)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTOOL\tOUTCOME\tDURATION\tCONTEXT")
	for _, row := range rows {
		outcome := row.Outcome
		if row.ErrorCode != "" {
			outcome += " (" + row.ErrorCode + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			row.StartedAt.Local().Format(time.DateTime), row.Tool, outcome, row.Duration, row.Context)
	}
	return tw.Flush()
}
