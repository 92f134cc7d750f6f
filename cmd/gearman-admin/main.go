// Command gearman-admin is a thin CLI shell over the Admin front-end. It
// carries no protocol logic of its own; every subcommand just calls
// through to the gearman package (spec.md section 1, "CLI wrapping" is
// out of scope for the library itself).
package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/chrisyee/gearman-go"
	"github.com/chrisyee/gearman-go/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "gearman-admin",
		Short: "Issue Gearman admin protocol commands against a job server",
	}

	flags := root.PersistentFlags()
	config.RegisterFlags(flags)

	log := hclog.New(&hclog.LoggerOptions{Name: "gearman-admin"})

	newAdmin := func() (*gearman.Admin, *config.Config, error) {
		cfg, err := config.Load(flags)
		if err != nil {
			return nil, nil, err
		}
		a := gearman.NewAdmin(cfg.Servers, gearman.AdminOptions{
			DialTimeout: cfg.DialTimeout,
			Log:         log,
		})
		return a, cfg, nil
	}

	root.AddCommand(
		newVersionCommand(newAdmin),
		newPingCommand(newAdmin),
		newStatusCommand(newAdmin),
		newWorkersCommand(newAdmin),
		newMaxQueueCommand(newAdmin),
		newShutdownCommand(newAdmin),
	)
	return root
}

type adminFactory func() (*gearman.Admin, *config.Config, error)

func newVersionCommand(newAdmin adminFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the job server's version string",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := newAdmin()
			if err != nil {
				return err
			}
			v, err := a.GetVersion(cfg.AdminTimeout)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
}

func newPingCommand(newAdmin adminFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Round-trip an ECHO_REQ and print the latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := newAdmin()
			if err != nil {
				return err
			}
			rtt, err := a.PingServer(cfg.AdminTimeout)
			if err != nil {
				return err
			}
			fmt.Printf("pong in %s\n", rtt)
			return nil
		},
	}
}

func newStatusCommand(newAdmin adminFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List registered functions and their queue depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := newAdmin()
			if err != nil {
				return err
			}
			lines, err := a.GetStatus(cfg.AdminTimeout)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Printf("%s\ttotal=%d\trunning=%d\tworkers=%d\n", l.Task, l.Total, l.Running, l.AvailableWorkers)
			}
			return nil
		},
	}
}

func newWorkersCommand(newAdmin adminFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List connected workers and their registered functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := newAdmin()
			if err != nil {
				return err
			}
			workers, err := a.GetWorkers(cfg.AdminTimeout)
			if err != nil {
				return err
			}
			for _, w := range workers {
				fmt.Printf("fd=%s ip=%s id=%s tasks=%v\n", w.FD, w.IP, w.ClientID, w.Abilities)
			}
			return nil
		},
	}
}

func newMaxQueueCommand(newAdmin adminFactory) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "maxqueue <task>",
		Short: "Set (or clear, with --size=-1) a function's maximum queue size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := newAdmin()
			if err != nil {
				return err
			}
			return a.SendMaxQueue(args[0], size, cfg.AdminTimeout)
		},
	}
	cmd.Flags().IntVar(&size, "size", -1, "maximum queue size; -1 omits it so the server default applies")
	return cmd
}

func newShutdownCommand(newAdmin adminFactory) *cobra.Command {
	var graceful bool
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Shut the job server down",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := newAdmin()
			if err != nil {
				return err
			}
			return a.SendShutdown(graceful, cfg.AdminTimeout)
		},
	}
	cmd.Flags().BoolVar(&graceful, "graceful", false, "wait for in-flight jobs to finish first")
	return cmd
}
