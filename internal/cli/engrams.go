package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentoven/larder/internal/engrams"
	"github.com/agentoven/larder/internal/pipelines"
	"github.com/agentoven/larder/pkg/models"
)

func init() {
	engramsCmd := &cobra.Command{
		Use:     "engrams",
		Aliases: []string{"utterances"},
		Short:   "Manage learned utterances",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List learned utterances, most hit first",
		Run:   runEngramsList,
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired utterances",
		Run:   runEngramsSweep,
	}

	learn := &cobra.Command{
		Use:   "learn",
		Short: "Teach a phrasing by hand",
		Long: `Teach a phrasing by hand. The example must reproduce the extraction, exactly as
the reasoning loop's learn_utterance tool requires. For example:

  larderctl engrams learn --pattern "got any {item} left" --command check \
    --map itemName={item} --example "got any cheese left" --extract item=cheese`,
		Run: runEngramsLearn,
	}
	learn.Flags().String("pattern", "", "Pattern with {item}, {zone}, {quantity} or {tag} placeholders")
	learn.Flags().String("command", "", "Command type to run on a match")
	learn.Flags().String("pipeline", "", "Pipeline to run on a match")
	learn.Flags().StringToString("map", nil, "Parameter to placeholder mapping, e.g. itemName={item}")
	learn.Flags().String("example", "", "Example input the pattern must match")
	learn.Flags().StringToString("extract", nil, "Expected placeholder values for the example")
	learn.MarkFlagRequired("pattern")
	learn.MarkFlagRequired("example")

	engramsCmd.AddCommand(list, sweep, learn)
	RootCmd.AddCommand(engramsCmd)
}

func runEngramsList(cmd *cobra.Command, args []string) {
	s, _, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	list, err := s.ListUtterances(cmd.Context())
	if err != nil {
		exitErr("list utterances", err)
	}
	output(cmd.OutOrStdout(), list, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPATTERN\tTARGET\tLEVEL\tHITS\tEXPIRES")
		for _, u := range list {
			target := string(u.CommandType)
			if u.PipelineID != 0 {
				target = fmt.Sprintf("pipeline #%d", u.PipelineID)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n",
				u.ID, u.Pattern, target, u.TTLLevel, u.HitCount, u.ExpiresAt.Local().Format(time.DateTime))
		}
		tw.Flush()
	})
}

func runEngramsSweep(cmd *cobra.Command, args []string) {
	s, _, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := engrams.NewStore(s).Sweep(cmd.Context())
	if err != nil {
		exitErr("sweep", err)
	}
	output(cmd.OutOrStdout(), map[string]int{"removed": n}, func(w io.Writer) {
		fmt.Fprintf(w, "Removed %d expired utterance(s).\n", n)
	})
}

func runEngramsLearn(cmd *cobra.Command, args []string) {
	pattern, _ := cmd.Flags().GetString("pattern")
	command, _ := cmd.Flags().GetString("command")
	pipeline, _ := cmd.Flags().GetString("pipeline")
	mapping, _ := cmd.Flags().GetStringToString("map")
	example, _ := cmd.Flags().GetString("example")
	extract, _ := cmd.Flags().GetStringToString("extract")

	s, cfg, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	u, err := engrams.NewStore(s).Learn(cmd.Context(), engrams.LearnRequest{
		Pattern:           pattern,
		CommandType:       models.CommandType(strings.TrimSpace(command)),
		PipelineName:      pipeline,
		ParamMapping:      mapping,
		ExampleInput:      example,
		ExampleExtraction: extract,
	}, pipelines.NewStore(s, cfg.Engrams.PipelineCacheTTL))
	if err != nil {
		exitErr("learn", err)
	}
	output(cmd.OutOrStdout(), u, func(w io.Writer) {
		fmt.Fprintf(w, "Learned #%d: %q → %s\n", u.ID, u.Pattern, u.Regex)
	})
}
