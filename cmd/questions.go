package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/scoring"
)

func newQuestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Work with question banks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [PATH]",
		Short: "Validate a question bank file, or the embedded bank when PATH is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			bank, err := scoring.LoadBank(path)
			if err != nil {
				return err
			}
			for _, t := range bank.Types() {
				counts := make(map[schemas.Dimension]int)
				for _, q := range bank.Questions(t) {
					counts[q.Dimension]++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d questions", t, len(bank.Questions(t)))
				for _, d := range schemas.Dimensions {
					fmt.Fprintf(cmd.OutOrStdout(), " %s=%d", d, counts[d])
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "question bank OK")
			return nil
		},
	})
	return cmd
}
