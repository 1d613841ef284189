package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pavelanni/interviewer/internal/gaps"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

func gapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Inspect and resolve a user's skill gaps",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List gaps of a user, highest priority first",
		RunE:  runGapsList,
	}
	f := list.Flags()
	f.String("user", "", "User identifier (required)")
	f.Bool("all", false, "Include improved and closed gaps")
	addStoreFlags(f)
	addLogFlags(f)
	_ = list.MarkFlagRequired("user")

	resolve := &cobra.Command{
		Use:   "resolve <gap-id>",
		Short: "Move a gap to in-progress, improved or closed",
		Args:  cobra.ExactArgs(1),
		RunE:  runGapsResolve,
	}
	f = resolve.Flags()
	f.String("status", string(model.GapClosed), "Target status (in-progress, improved, closed)")
	addStoreFlags(f)
	addLogFlags(f)

	cmd.AddCommand(list, resolve)
	return cmd
}

func runGapsList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	user := v.GetString("user")
	var list []model.Gap
	if v.GetBool("all") {
		list, err = db.Gaps().ListByUser(cmd.Context(), user)
		gaps.SortByPriority(list)
	} else {
		list, err = gaps.NewLedger(db.Gaps()).Open(cmd.Context(), user)
	}
	if err != nil {
		return fmt.Errorf("list gaps: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSKILL\tKIND\tSEVERITY\tPRIORITY\tSTATUS\tDETECTED")
	for _, g := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			g.ID, g.Skill, g.Kind, g.Severity, g.Priority, g.Status, g.DetectedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runGapsResolve(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	g, err := gaps.NewLedger(db.Gaps()).Resolve(cmd.Context(), args[0], model.GapStatus(v.GetString("status")))
	if err != nil {
		return fmt.Errorf("resolve gap: %w", err)
	}
	fmt.Printf("gap %s (%s, %s) is now %s\n", g.ID, g.Skill, g.Kind, g.Status)
	return nil
}
