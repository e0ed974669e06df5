package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/weave/config"
	"github.com/grovetools/weave/internal/daemon/pidfile"
	"github.com/grovetools/weave/internal/daemon/server"
	"github.com/grovetools/weave/internal/identity"
	"github.com/grovetools/weave/internal/store"
	"github.com/grovetools/weave/internal/supervisor"
	"github.com/grovetools/weave/internal/tunnel"
	"github.com/grovetools/weave/internal/watcher"
	"github.com/grovetools/weave/logging"
	"github.com/grovetools/weave/pkg/models"
	"github.com/grovetools/weave/pkg/paths"
	"github.com/spf13/cobra"
)

// NewDaemonCmd returns the weaved daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Weave session daemon",
		Long:  "Supervises local assistant sessions and federates them across the LAN.",
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

// supervisorBackend adapts the supervisor to the tunnel's Backend view.
type supervisorBackend struct {
	sup *supervisor.Supervisor
}

func (b *supervisorBackend) ListSessions() []models.Session {
	return b.sup.List()
}

func (b *supervisorBackend) CreateSession(kind models.SessionKind, workingDir, name string) (models.Session, error) {
	return b.sup.Create(supervisor.CreateRequest{Kind: kind, WorkingDir: workingDir, Name: name})
}

func (b *supervisorBackend) CloseSession(id string) error {
	return b.sup.Close(id)
}

func (b *supervisorBackend) WriteSession(id string, data []byte) {
	b.sup.Write(id, data)
}

func (b *supervisorBackend) ResizeSession(id string, cols, rows uint16) {
	b.sup.Resize(id, cols, rows)
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the weave daemon in foreground mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.Configure(cfg.Logging)
			logger := logging.NewLogger("weaved")

			pidPath := paths.PidFilePath()
			if err := pidfile.Acquire(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			// Local session supervision
			st := store.New(paths.SessionsFilePath(), logging.NewLogger("store"))
			sup := supervisor.New(st, logging.NewLogger("supervisor"), supervisor.Options{
				LazyRestore: cfg.Restore.Lazy,
			})

			// Peer fabric; a missing git email leaves it disabled.
			var ident *models.Identity
			if !cfg.Tunnel.Disabled {
				ident = identity.Resolve(paths.InstanceIDPath(), logger)
			}
			manager := tunnel.NewManager(ident, &supervisorBackend{sup: sup}, sup.Bus(), logging.NewLogger("tunnel"))
			if err := manager.Start(); err != nil {
				return fmt.Errorf("failed to start peer fabric: %w", err)
			}

			// IPC surface
			srv := server.New(sup, manager, logging.NewLogger("ipc"))

			// Auto-discovery of un-managed assistant sessions
			w := watcher.New(watcher.Config{
				HistoryPath:  paths.ClaudeHistoryPath(),
				ProjectsDir:  paths.ClaudeProjectsDir(),
				CopilotDir:   paths.CopilotSessionStateDir(),
				IsKnownDir:   sup.HasWorkingDir,
				OnDiscovered: srv.AddImportable,
			}, logging.NewLogger("watcher"))
			w.Start()

			// Config hot-reload notifications
			cfgWatcher, err := config.NewWatcher(500*time.Millisecond, srv.NotifyConfigReload, logging.NewLogger("config-watcher"))
			if err != nil {
				logger.WithError(err).Warn("Config watcher unavailable")
			}

			if cfg.RestoreEnabled() {
				go sup.RestoreSessions()
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-stop
				logger.Info("Received stop signal")

				// Suppress emissions first so nothing writes to a torn-down
				// IPC channel, then dismantle outward-facing pieces.
				sup.CloseAll()
				w.Stop()
				manager.Shutdown()
				if cfgWatcher != nil {
					_ = cfgWatcher.Close()
				}

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}

				_ = pidfile.Release(pidPath)
			}()

			if err := srv.ListenAndServe(paths.SocketPath()); err != nil {
				// Shutdown closes the listener; treat that as clean exit.
				logger.WithError(err).Debug("Server loop ended")
			}
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("failed to read pidfile: %w", err)
			}
			if !running {
				fmt.Println("Daemon is not running")
				return nil
			}
			process, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to signal daemon: %w", err)
			}
			fmt.Printf("Sent stop signal to daemon (PID %d)\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("failed to read pidfile: %w", err)
			}
			if !running {
				fmt.Println("Daemon: not running")
				return nil
			}
			fmt.Printf("Daemon: running (PID %d)\n", pid)
			fmt.Printf("Socket: %s\n", paths.SocketPath())
			return nil
		},
	}
}
