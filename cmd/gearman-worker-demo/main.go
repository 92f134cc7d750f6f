// Command gearman-worker-demo registers a reverse-echo task and runs the
// worker grab cycle until interrupted. It carries no protocol logic of its
// own; every behavior is delegated to the gearman package.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/chrisyee/gearman-go"
	"github.com/chrisyee/gearman-go/config"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gearman-worker-demo",
		Short: "Run a demo Gearman worker that registers a reverse-echo task",
		RunE:  runDemo,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	log := hclog.New(&hclog.LoggerOptions{Name: "gearman-worker-demo"})

	w := gearman.NewWorker(cfg.Servers, gearman.WorkerOptions{
		DialTimeout: cfg.DialTimeout,
		Log:         log,
	})

	if err := w.RegisterTask("reverse", 0, reverseEcho); err != nil {
		return err
	}
	if cfg.ClientID != "" {
		if err := w.SetClientID(cfg.ClientID); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("worker started", "task", "reverse", "servers", cfg.Servers)
	return w.Work(ctx, cfg.WorkerPollTimeout)
}

func reverseEcho(job *gearman.Job) ([]byte, error) {
	data := job.Data
	out := make([]byte, len(data))
	for i, b := range data {
		out[len(data)-1-i] = b
	}
	return out, nil
}
