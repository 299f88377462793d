package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentoven/larder/internal/pipelines"
	"github.com/agentoven/larder/internal/sqlguard"
)

func init() {
	pipelinesCmd := &cobra.Command{
		Use:   "pipelines",
		Short: "Inspect saved SQL pipelines",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved pipelines",
		Run:   runPipelinesList,
	}

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one pipeline with its SQL",
		Args:  cobra.ExactArgs(1),
		Run:   runPipelinesShow,
	}

	pipelinesCmd.AddCommand(list, show)
	RootCmd.AddCommand(pipelinesCmd)

	RootCmd.AddCommand(&cobra.Command{
		Use:   "check-sql <sql>",
		Short: "Run a statement through the SQL validator without executing it",
		Args:  cobra.ExactArgs(1),
		Run:   runCheckSQL,
	})
}

func runPipelinesList(cmd *cobra.Command, args []string) {
	s, _, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	list, err := s.ListPipelines(cmd.Context())
	if err != nil {
		exitErr("list pipelines", err)
	}
	output(cmd.OutOrStdout(), list, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPARAMS\tMUTATION\tHITS")
		for _, p := range list {
			fmt.Fprintf(tw, "%d\t%s\t%v\t%t\t%d\n", p.ID, p.Name, p.Params, p.IsMutation, p.HitCount)
		}
		tw.Flush()
	})
}

func runPipelinesShow(cmd *cobra.Command, args []string) {
	s, _, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := pipelines.NewStore(s, 0).GetByName(cmd.Context(), args[0])
	if err != nil {
		exitErr("get pipeline", err)
	}
	output(cmd.OutOrStdout(), p, func(w io.Writer) {
		fmt.Fprintf(w, "%s (#%d, %d hits)\n%s\n\nParams: %v\nMutation: %t\n",
			p.Name, p.ID, p.HitCount, p.SQLTemplate, p.Params, p.IsMutation)
		if p.FormatTemplate != "" {
			fmt.Fprintf(w, "Format:\n%s\n", p.FormatTemplate)
		}
	})
}

func runCheckSQL(cmd *cobra.Command, args []string) {
	kind, err := sqlguard.Validate(args[0])
	if err != nil {
		exitErr("rejected", err)
	}
	output(cmd.OutOrStdout(), map[string]any{"type": kind, "mutation": kind.IsMutation()}, func(w io.Writer) {
		fmt.Fprintf(w, "OK: %s (mutation: %t)\n", kind, kind.IsMutation())
	})
}
