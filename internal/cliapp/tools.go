package cliapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"toolhost/internal/mcp/schema"
	"toolhost/internal/shared/util"

	"github.com/spf13/cobra"
)

type toolListing struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Parameters  []string `json:"parameters,omitempty"`
}

// NewToolsCmd creates the "tools" subcommand.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List tools visible under the active policy",
		Long: "Without --all, lists the tools a client would see under the selected context and modes. " +
			"With --all, lists every registered tool regardless of policy.",
		Args: cobra.NoArgs,
		RunE: runTools,
	}
	addSessionFlags(cmd)
	cmd.Flags().Bool("all", false, "List every registered tool, ignoring context and modes")
	cmd.Flags().String("category", "", "Only list registered tools in this category (implies --all)")
	cmd.Flags().Bool("json", false, "Print JSON instead of a table")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	session, _, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close(context.Background()) }()

	all, _ := cmd.Flags().GetBool("all")
	category, _ := cmd.Flags().GetString("category")
	asJSON, _ := cmd.Flags().GetBool("json")

	var listing []toolListing
	if all || strings.TrimSpace(category) != "" {
		reg := session.Registry()
		names := reg.List()
		if category = strings.TrimSpace(category); category != "" {
			names = reg.ListByCategory(category)
		}
		for _, name := range names {
			c, ok := reg.Get(name)
			if !ok {
				continue
			}
			item := toolListing{Name: c.Name, Description: c.Description, Categories: c.Categories}
			for _, p := range c.Parameters {
				item.Parameters = append(item.Parameters, p.Name)
			}
			listing = append(listing, item)
		}
	} else {
		for _, def := range session.ListTools() {
			listing = append(listing, toolListing{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  schemaProperties(def),
			})
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if listing == nil {
			listing = []toolListing{}
		}
		return writeJSON(out, listing)
	}
	if len(listing) == 0 {
		status := session.Status()
		msg := fmt.Sprintf("No tools visible under context %q with modes [%s].", status.Context, strings.Join(status.Modes, ", "))
		fmt.Fprintln(out, newStyles(cmd, out).muted.Render(msg))
		return nil
	}
	return writeToolTable(out, listing)
}

func schemaProperties(def schema.ToolDefinition) []string {
	props, _ := def.InputSchema["properties"].(map[string]any)
	return util.SortedStringKeys(props)
}

func writeToolTable(out io.Writer, listing []toolListing) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORIES\tPARAMETERS\tDESCRIPTION")
	for _, item := range listing {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			item.Name,
			dashIfEmpty(strings.Join(item.Categories, ",")),
			dashIfEmpty(strings.Join(item.Parameters, ",")),
			item.Description,
		)
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
