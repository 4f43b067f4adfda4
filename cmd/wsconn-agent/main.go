// Command wsconn-agent is a small demo host for package wsconn: it
// loads a ClientConfig, connects to a target URL, and logs every
// observer event as structured JSON until interrupted.
//
// Grounded on apps/host-agent/cmd/agent/main.go: the same
// flag-parsed install/uninstall/run surface over kardianos/service,
// the same interactive-vs-service branch, the same slog.JSONHandler
// setup.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"

	wsconn "github.com/fleetsignal/wsconn"
	"github.com/fleetsignal/wsconn/internal/config"
)

const (
	serviceName        = "WSConnAgent"
	serviceDisplayName = "WSConn Reconnecting Client Agent"
	serviceDescription = "Demo host process for the wsconn reconnecting WebSocket client"
)

type agent struct {
	cfg    *config.ClientConfig
	url    string
	cancel context.CancelFunc
}

func (a *agent) Start(s service.Service) error {
	go a.run()
	return nil
}

func (a *agent) Stop(s service.Service) error {
	slog.Info("service stop requested")
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

func (a *agent) run() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	defer cancel()

	if err := runAgent(ctx, a.cfg, a.url); err != nil {
		slog.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default: wsconn.yaml)")
		url         = flag.String("url", "", "WebSocket URL to connect to")
		doInstall   = flag.Bool("install", false, "install as a system service")
		doUninstall = flag.Bool("uninstall", false, "uninstall the system service")
		doRun       = flag.Bool("run", false, "run in foreground (non-service mode)")
	)
	flag.Parse()

	initLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel)

	svcConfig := &service.Config{
		Name:        serviceName,
		DisplayName: serviceDisplayName,
		Description: serviceDescription,
		Arguments:   []string{"-run"},
	}

	ag := &agent{cfg: cfg, url: *url}
	svc, err := service.New(ag, svcConfig)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	switch {
	case *doInstall:
		if err := svc.Install(); err != nil {
			slog.Error("failed to install service", "error", err)
			os.Exit(1)
		}
		fmt.Println("service installed:", serviceName)
		return

	case *doUninstall:
		if err := svc.Stop(); err != nil {
			slog.Warn("failed to stop service (may not be running)", "error", err)
		}
		if err := svc.Uninstall(); err != nil {
			slog.Error("failed to uninstall service", "error", err)
			os.Exit(1)
		}
		fmt.Println("service uninstalled:", serviceName)
		return

	case *doRun:
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		slog.Info("starting wsconn-agent in foreground mode")
		if err := runAgent(ctx, cfg, *url); err != nil {
			slog.Error("agent exited with error", "error", err)
			os.Exit(1)
		}
		return

	default:
		if service.Interactive() {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			fmt.Println("wsconn-agent running. Press Ctrl+C to stop.")
			if err := runAgent(ctx, cfg, *url); err != nil {
				fmt.Printf("agent error: %v\n", err)
				fmt.Println("Press Enter to exit...")
				bufio.NewReader(os.Stdin).ReadBytes('\n')
				os.Exit(1)
			}
		} else {
			if err := svc.Run(); err != nil {
				slog.Error("service run failed", "error", err)
				os.Exit(1)
			}
		}
	}
}

// runAgent connects the client, logs every observer event until ctx is
// cancelled, then terminates cleanly.
func runAgent(ctx context.Context, cfg *config.ClientConfig, url string) error {
	if url == "" {
		return fmt.Errorf("-url is required")
	}

	slog.Info("starting wsconn client", "url", url)

	client := wsconn.New(cfg, nil)
	if err := client.Connect(url, nil, nil); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	go func() {
		for ev := range client.Events() {
			slog.Info("observer event",
				"kind", string(ev.Kind),
				"detail", ev.Detail,
				"state", ev.Snapshot.State.String(),
			)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down wsconn client")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DisconnectTimeout+cfg.ConnectTimeout)
	defer cancel()
	if err := client.Terminate(shutdownCtx); err != nil {
		return fmt.Errorf("terminate: %w", err)
	}

	slog.Info("wsconn-agent shut down cleanly")
	return nil
}

// initLogger configures the global slog logger at the given level.
func initLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
