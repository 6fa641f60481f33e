package cli

import (
	"github.com/spf13/cobra"

	"signcoach/internal/domain"
)

func newEndpointsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "Show the recognition endpoint configured for each category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := root.build(newConsoleSink(cmd.OutOrStdout(), false), root.logger(cmd))
			if err != nil {
				return err
			}

			cmd.Println(dimStyle.Render("endpoints file: " + services.Config.Endpoints.Path))
			table := services.Controller.Endpoints()
			for _, category := range domain.Categories() {
				endpoint, ok := table.Lookup(category)
				cmd.Println(renderEndpoint(category, endpoint, ok))
			}
			return nil
		},
	}
}
