package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muvahhid/molayeri-sub002/config"
	"github.com/muvahhid/molayeri-sub002/util"
)

func newVersionCmd(a *app) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and optionally check for a newer release",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", config.AppName, config.AppVersion)

			if !check || os.Getenv(config.EnvSkipUpdateCheck) != "" {
				return nil
			}

			checker, err := util.NewUpdateChecker(&http.Client{Timeout: 10 * time.Second}, a.cfg.Update)
			if err != nil {
				return err
			}
			info, err := checker.Check(cmd.Context(), config.AppVersion)
			if err != nil {
				return err
			}
			if info.Available {
				fmt.Fprintf(out, "update available: %s (%s)\n", info.Latest, info.ReleaseURL)
			} else {
				fmt.Fprintf(out, "up to date (latest %s)\n", info.Latest)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check GitHub for a newer release")

	return cmd
}
