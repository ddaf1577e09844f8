// Command runkeeper drives a runkeeper server from the shell.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haatos/runkeeper/internal/views"
)

var (
	serverURL string
	timeout   time.Duration
)

func newClient() *Client {
	return NewClient(serverURL, timeout)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "runkeeper",
		Short:         "runkeeper - build records and artifact retention",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultURL := os.Getenv("RUNKEEPER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "runkeeper server URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(
		newJobsCmd(),
		newBuildCmd(),
		newShowCmd(),
		newConsoleCmd(),
		newKeepCmd(),
		newUnkeepCmd(),
		newInterruptCmd(),
		newDeleteCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func parseBuildArgs(args []string) (string, int64, error) {
	number, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || number < 1 {
		return "", 0, fmt.Errorf("invalid build number %q", args[1])
	}
	return args[0], number, nil
}

func printBuild(w io.Writer, bv views.BuildView) {
	fmt.Fprintf(w, "%s #%d\t%s", bv.DisplayName, bv.Number, bv.Status)
	if bv.Result != "" {
		fmt.Fprintf(w, "\t%s", bv.Result)
	}
	if bv.Keep {
		fmt.Fprint(w, "\tkept")
	}
	fmt.Fprintln(w)
}

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs and their latest build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := newClient().Jobs(cmd.Context())
			if err != nil {
				return err
			}
			for _, j := range jobs {
				if len(j.Builds) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tno builds\n", j.DisplayName)
					continue
				}
				printBuild(cmd.OutOrStdout(), j.Builds[0])
			}
			return nil
		},
	}
}

func newBuildCmd() *cobra.Command {
	var wait bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "build <job>",
		Short: "Trigger a build of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			bv, err := c.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s #%d\n", bv.DisplayName, bv.Number)
			if !wait {
				return nil
			}
			rv, err := c.Wait(cmd.Context(), bv.Job, bv.Number, interval)
			if err != nil {
				return err
			}
			printBuild(cmd.OutOrStdout(), rv.BuildView)
			if rv.Result != "SUCCESS" {
				return fmt.Errorf("build finished with %s", rv.Result)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the build to complete")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval while waiting")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job> <number>",
		Short: "Show a build with its badges, dependencies and artifacts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, number, err := parseBuildArgs(args)
			if err != nil {
				return err
			}
			rv, err := newClient().Build(cmd.Context(), job, number)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printBuild(w, rv.BuildView)
			for _, b := range rv.Badges {
				if b.Visible() {
					fmt.Fprintf(w, "  [%s] %s\n", b.Icon, b.Tooltip)
				}
			}
			if !rv.CanDelete && rv.DeleteReason != "" {
				fmt.Fprintf(w, "  not deletable: %s\n", rv.DeleteReason)
			}
			for _, ref := range rv.Upstream {
				fmt.Fprintf(w, "  upstream: %s\n", ref.DisplayName)
			}
			for _, ref := range rv.Downstream {
				fmt.Fprintf(w, "  downstream: %s\n", ref.DisplayName)
			}
			for _, e := range rv.Artifacts {
				fmt.Fprintf(w, "  artifact: %s (%d bytes)\n", e.Name, e.Size)
			}
			if rv.ArtifactsError != "" {
				fmt.Fprintf(w, "  artifacts: %s\n", rv.ArtifactsError)
			}
			return nil
		},
	}
}

func newConsoleCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "console <job> <number>",
		Short: "Print the console output of a build",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, number, err := parseBuildArgs(args)
			if err != nil {
				return err
			}
			if !follow {
				return newClient().Console(cmd.Context(), job, number, cmd.OutOrStdout())
			}
			result, err := newClient().Follow(cmd.Context(), job, number, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if result != "SUCCESS" {
				return fmt.Errorf("build finished with %s", result)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the output until the build completes")
	return cmd
}

func newKeepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keep <job> <number>",
		Short: "Keep a build forever",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, number, err := parseBuildArgs(args)
			if err != nil {
				return err
			}
			bv, err := newClient().Keep(cmd.Context(), job, number)
			if err != nil {
				return err
			}
			printBuild(cmd.OutOrStdout(), *bv)
			return nil
		},
	}
}

func newUnkeepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unkeep <job> <number>",
		Short: "Stop keeping a build forever",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, number, err := parseBuildArgs(args)
			if err != nil {
				return err
			}
			bv, err := newClient().Unkeep(cmd.Context(), job, number)
			if err != nil {
				return err
			}
			printBuild(cmd.OutOrStdout(), *bv)
			return nil
		},
	}
}

func newInterruptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt <job> <number>",
		Short: "Abort a running build",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, number, err := parseBuildArgs(args)
			if err != nil {
				return err
			}
			bv, err := newClient().Interrupt(cmd.Context(), job, number)
			if err != nil {
				return err
			}
			printBuild(cmd.OutOrStdout(), *bv)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <job> <number>",
		Short: "Delete a build and its artifacts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, number, err := parseBuildArgs(args)
			if err != nil {
				return err
			}
			prompt := fmt.Sprintf("Delete %s #%d and its artifacts?", job, number)
			if !yes && !confirm(os.Stdin, cmd.ErrOrStderr(), prompt) {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
			if err := newClient().Delete(cmd.Context(), job, number); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s #%d\n", job, number)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
