// Command hermesd is the Hermes storage daemon: it builds a Config,
// constructs a hermes.Service from it, and serves the control and bulk RPC
// planes until signalled to stop.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamware/hermes/internal/config"
	"github.com/dreamware/hermes/internal/hermes"
	"github.com/dreamware/hermes/internal/rpc"
)

// Exit codes per spec.md §6.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitTransportBind  = 2
	exitTargetInitFail = 3
)

func main() {
	var configPath string
	var directoryEntries []string

	root := &cobra.Command{
		Use:   "hermesd",
		Short: "Hermes tiered-storage daemon",
		Long:  "hermesd serves a node's metadata, buffer pool, and data-placement operations over the Hermes control and bulk RPC planes.",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Build the configured Service and serve until signalled (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, directoryEntries)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to the server config file (falls back to $HERMES_CONF)")
	runCmd.Flags().StringArrayVar(&directoryEntries, "peer", nil, "peer directory entry, \"nodeID=host:port\" (repeatable)")

	root.AddCommand(runCmd)
	root.RunE = runCmd.RunE
	root.Flags().AddFlagSet(runCmd.Flags())

	if err := root.Execute(); err != nil {
		log.Printf("hermesd: %v", err)
		os.Exit(exitCodeFor(err))
	}
}

// run builds cfg, constructs the Service, and blocks serving both RPC
// planes until SIGINT/SIGTERM, mirroring the teacher's cmd/node and
// cmd/coordinator signal.Notify shutdown pattern.
func run(configPath string, directoryEntries []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}

	var dir *rpc.Directory
	if len(directoryEntries) > 0 {
		dir, err = rpc.NewDirectory(directoryEntries)
		if err != nil {
			return &exitError{code: exitConfigError, err: err}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := hermes.New(ctx, cfg, dir)
	if err != nil {
		return &exitError{code: exitTargetInitFail, err: err}
	}

	httpLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.RPC.Port))
	if err != nil {
		return &exitError{code: exitTransportBind, err: fmt.Errorf("binding control listener: %w", err)}
	}
	grpcLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.RPC.Port+1))
	if err != nil {
		return &exitError{code: exitTransportBind, err: fmt.Errorf("binding bulk listener: %w", err)}
	}

	serveErrCh := make(chan error, 1)
	go func() {
		svc.Logger.Info().
			Str("control_addr", httpLn.Addr().String()).
			Str("bulk_addr", grpcLn.Addr().String()).
			Msg("hermesd listening")
		serveErrCh <- svc.Serve(ctx, httpLn, grpcLn)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		svc.Logger.Info().Msg("hermesd received shutdown signal")
	case err := <-serveErrCh:
		if err != nil {
			return &exitError{code: exitTransportBind, err: err}
		}
	}

	cancel()
	svc.Shutdown(context.Background())
	svc.Logger.Info().Msg("hermesd stopped")
	return nil
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return exitConfigError
}
