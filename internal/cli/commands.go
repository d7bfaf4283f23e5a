package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vk/setupgrid/internal/app"
)

func newRunCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [MODEL_PATH...]",
		Short: "Install every item of the model",
		Long: `Loads the model, orders it and drives every item through Init, Install and
Settle. The declared version of every installed item is stored so that the
next run skips it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			a := o.newApp(cfg)
			defer closeApp(a)

			report, err := a.Run(cmd.Context())
			app.WriteSummary(o.stdout, report)
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			return nil
		},
	}
}

func newPlanCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [MODEL_PATH...]",
		Short: "Print the execution order without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			a := o.newApp(cfg)
			defer closeApp(a)

			res, err := a.Plan(cmd.Context())
			if res != nil {
				app.WritePlan(o.stdout, res)
			}
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			return nil
		},
	}
}

func newVersionsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Inspect and edit the version store",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every stored version",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.storeApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)
			records, err := a.Versions(cmd.Context())
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			w := tabwriter.NewWriter(o.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tVERSION")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.ItemType, r.FullName, r.Version)
			}
			return w.Flush()
		},
	}

	get := &cobra.Command{
		Use:   "get TYPE NAME",
		Short: "Print the stored version of one item",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.storeApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)
			v, err := a.GetVersion(cmd.Context(), args[0], args[1])
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			if v.IsZero() {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("no version stored for %s %q", args[0], args[1])}
			}
			fmt.Fprintln(o.stdout, v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set TYPE NAME VERSION",
		Short: "Overwrite the stored version of one item",
		Args:  usageArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.storeApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)
			if err := a.SetVersion(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			return nil
		},
	}

	cmd.AddCommand(list, get, set)
	return cmd
}

// storeApp builds an app for commands that only touch the version store.
func (o *options) storeApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.resolveConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	return o.newApp(cfg), nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger().Error("Failed to release resources.", "error", err)
	}
}
