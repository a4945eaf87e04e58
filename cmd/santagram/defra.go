package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/defra"
	"github.com/santagram/santagram/internal/home"
)

var defraCmd = &cobra.Command{
	Use:   "defra",
	Short: "Manage the DefraDB container",
	Long: `Manage the DefraDB container lifecycle.

DefraDB is the source of truth for all order state. The database runs
in a Docker container with data persisted to ~/.santagram/defradb/.

Examples:
  santagram defra start   # Start the DefraDB container
  santagram defra stop    # Stop the container (data preserved)
  santagram defra status  # Check container status
  santagram defra logs    # View container logs`,
}

// runWithManager wires the home directory and Docker manager for a
// defra subcommand and tears the manager down afterwards.
func runWithManager(fn func(cmd *cobra.Command, mgr *defra.DockerManager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()
		return fn(cmd, mgr)
	}
}

var defraStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DefraDB container",
	Long: `Start the DefraDB container.

Creates the container if it does not exist, starts it if stopped, and
is a no-op when already running. Data lives in ~/.santagram/defradb/.`,
	RunE: runWithManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		fmt.Println("Starting DefraDB...")
		if err := mgr.Start(cmd.Context()); err != nil {
			return fmt.Errorf("failed to start DefraDB: %w", err)
		}
		fmt.Printf("DefraDB is running at %s\n", mgr.URL())
		return nil
	}),
}

var defraStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the DefraDB container",
	Long: `Stop the DefraDB container but keep its data. Use
'santagram defra start' to restart it later.`,
	RunE: runWithManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		fmt.Println("Stopping DefraDB...")
		if err := mgr.Stop(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop DefraDB: %w", err)
		}
		fmt.Println("DefraDB stopped")
		return nil
	}),
}

var defraStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show DefraDB container status",
	RunE: runWithManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		ctx := cmd.Context()
		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case defra.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())
			if err := defra.NewClient(mgr.URL()).HealthCheck(ctx); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case defra.StatusStopped:
			fmt.Printf("Status: %s (use 'santagram defra start' to start)\n", status)
		case defra.StatusNotFound:
			fmt.Printf("Status: %s (use 'santagram defra start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}
		return nil
	}),
}

var logsTail string

var defraLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show DefraDB container logs",
	RunE: runWithManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		logs, err := mgr.Logs(cmd.Context(), logsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}
		fmt.Print(logs)
		return nil
	}),
}

var defraRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the DefraDB container",
	Long: `Stop and remove the DefraDB container. Data in
~/.santagram/defradb/ is NOT deleted, only the container goes away.`,
	RunE: runWithManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		fmt.Println("Removing DefraDB container...")
		if err := mgr.Remove(cmd.Context()); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}
		fmt.Println("DefraDB container removed (data preserved)")
		return nil
	}),
}

var defraWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for DefraDB to be ready",
	Long: `Block until DefraDB accepts connections. Useful in scripts
that need the database up before running other commands.`,
	RunE: runWithManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for DefraDB (timeout: %s)...\n", timeout)
		if err := mgr.WaitReady(cmd.Context(), timeout); err != nil {
			return fmt.Errorf("DefraDB not ready: %w", err)
		}
		fmt.Println("DefraDB is ready")
		return nil
	}),
}

func init() {
	defraCmd.AddCommand(defraStartCmd)
	defraCmd.AddCommand(defraStopCmd)
	defraCmd.AddCommand(defraStatusCmd)
	defraCmd.AddCommand(defraLogsCmd)
	defraCmd.AddCommand(defraRemoveCmd)
	defraCmd.AddCommand(defraWaitCmd)

	defraLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")
	defraWaitCmd.Flags().Duration("timeout", 30*time.Second, "Timeout waiting for DefraDB")

	rootCmd.AddCommand(defraCmd)
}

// getHome returns the home directory manager, creating the directory
// tree on first use.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// getDockerManager creates a DockerManager rooted at the home data dir.
func getDockerManager(h *home.Dir) (*defra.DockerManager, error) {
	dataPath := filepath.Join(h.Path(), "defradb")
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return defra.NewDockerManager(defra.DockerConfig{DataPath: dataPath})
}
