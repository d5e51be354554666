package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"callaudit/internal/daemonctl"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the scoring daemon",
	}

	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))

	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			client, err := daemonctl.New(cfg)
			if err != nil {
				return err
			}
			if pingErr := client.Ping(cmd.Context()); pingErr == nil {
				fmt.Fprintln(out, "Daemon is already running")
				return nil
			}

			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			var configPath string
			if ctx.configFlag != nil {
				configPath = strings.TrimSpace(*ctx.configFlag)
			}
			if err := daemonctl.Launch(executable, daemonctl.LaunchOptions{ConfigPath: configPath}); err != nil {
				return err
			}
			if err := daemonctl.WaitForDaemon(cmd.Context(), client, waitTimeout); err != nil {
				return err
			}
			fmt.Fprintln(out, "Daemon started")
			return nil
		},
	}

	cmd.Flags().DurationVar(&waitTimeout, "wait", 10*time.Second, "How long to wait for the daemon to come up")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			pidPath := filepath.Join(cfg.Paths.LogDir, pidFileName)
			data, err := os.ReadFile(pidPath)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(out, "Daemon is not running (no pid file)")
					return nil
				}
				return fmt.Errorf("read pid file: %w", err)
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid file %s", pidPath)
			}

			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				if errors.Is(err, syscall.ESRCH) {
					fmt.Fprintln(out, "Daemon process already exited")
					os.Remove(pidPath)
					return nil
				}
				return fmt.Errorf("signal daemon: %w", err)
			}

			client, err := daemonctl.New(cfg)
			if err == nil {
				if err := daemonctl.WaitForShutdown(cmd.Context(), client, waitTimeout); err != nil {
					return err
				}
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&waitTimeout, "wait", 10*time.Second, "How long to wait for the daemon to exit")
	return cmd
}
