package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shopload/schema"
)

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count [entity...]",
		Short: "Print the row count of each entity table",
		RunE: func(cmd *cobra.Command, args []string) error {
			entities := schema.Entities()
			if len(args) > 0 {
				entities = entities[:0:0]
				for _, name := range args {
					e, err := schema.EntityByName(name)
					if err != nil {
						return err
					}
					entities = append(entities, e)
				}
			}

			ctx := cmd.Context()
			repo, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			out := cmd.OutOrStdout()
			headerColor.Fprintln(out, "Row counts")
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tROWS")
			for _, e := range entities {
				n, err := repo.CountRows(ctx, e.Table)
				if err != nil {
					_ = tw.Flush()
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\n", e.Table, humanize.Comma(n))
			}
			return tw.Flush()
		},
	}
}
