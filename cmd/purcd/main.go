// Command purcd is PurC's daemon and single-shot runner. Grounded on
// the teacher's cmd/nova cobra root command: persistent flags for
// shared connection settings, one subcommand per operation, and a
// daemon subcommand that loads config, wires every component, and
// blocks in a signal-driven shutdown loop.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/config"
	"github.com/purc-go/purc/internal/fetcher"
	"github.com/purc-go/purc/internal/instance"
	"github.com/purc-go/purc/internal/logging"
	"github.com/purc-go/purc/internal/message"
	"github.com/purc-go/purc/internal/observability"
	"github.com/purc-go/purc/internal/rdrbridge"
	"github.com/purc-go/purc/internal/scheduler"
	"github.com/purc-go/purc/internal/store"
	"github.com/purc-go/purc/internal/variant"
	"github.com/purc-go/purc/internal/vdom"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "purcd",
		Short: "purcd - HVML coroutine runtime",
		Long:  "purcd runs an HVML instance: a heap of coroutines driven by a cooperative scheduler.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to JSON config file (optional, env overrides)")

	rootCmd.AddCommand(
		serveCmd(),
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("purcd %s (commit %s, built %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func initObservability(ctx context.Context, cfg *config.Config) error {
	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Daemon.LogLevel)

	return observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	})
}

// buildMoveBuffer constructs the cross-instance queue cfg selects.
// Redis payloads carry element/data variants eJSON-encoded as a JSON
// string, since variant.Serialize emits plain-ejson text rather than a
// json.RawMessage-safe document on its own.
func buildMoveBuffer(cfg config.MoveBufferConfig) (message.MoveBuffer, error) {
	switch cfg.Backend {
	case "", "local":
		return message.NewLocalMoveBuffer(cfg.Capacity), nil
	case "redis":
		if cfg.RedisDSN == "" {
			return nil, fmt.Errorf("move-buffer backend is redis but redis_dsn is empty")
		}
		opts, err := redis.ParseURL(cfg.RedisDSN)
		if err != nil {
			return nil, fmt.Errorf("parse redis dsn: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return message.NewRedisMoveBuffer(client, "default", int64(cfg.Capacity), encodeVariantPayload, decodeVariantPayload), nil
	default:
		return nil, fmt.Errorf("unknown move-buffer backend %q", cfg.Backend)
	}
}

func encodeVariantPayload(m *message.Message) (elementJSON, dataJSON json.RawMessage, err error) {
	if m.ElementValue != nil {
		if elementJSON, err = marshalVariantAsJSONString(m.ElementValue); err != nil {
			return nil, nil, err
		}
	}
	if m.Data != nil {
		if dataJSON, err = marshalVariantAsJSONString(m.Data); err != nil {
			return nil, nil, err
		}
	}
	return elementJSON, dataJSON, nil
}

func marshalVariantAsJSONString(v *variant.Value) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := variant.Serialize(&buf, v, variant.SerializeOptions{Format: variant.FormatPlainEJSON}); err != nil {
		return nil, err
	}
	return json.Marshal(buf.String())
}

func decodeVariantPayload(m *message.Message, elementJSON, dataJSON json.RawMessage) error {
	if len(elementJSON) > 0 {
		v, err := unmarshalVariantFromJSONString(elementJSON)
		if err != nil {
			return err
		}
		m.ElementValue = v
	}
	if len(dataJSON) > 0 {
		v, err := unmarshalVariantFromJSONString(dataJSON)
		if err != nil {
			return err
		}
		m.Data = v
	}
	return nil
}

func unmarshalVariantFromJSONString(raw json.RawMessage) (*variant.Value, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("decode variant payload: %w", err)
	}
	return variant.Parse(text)
}

func buildAuditStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return store.New(ctx, cfg.DSN)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the instance daemon until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initObservability(ctx, cfg); err != nil {
				return fmt.Errorf("init observability: %w", err)
			}
			defer observability.Shutdown(context.Background())

			mb, err := buildMoveBuffer(cfg.MoveBuffer)
			if err != nil {
				return fmt.Errorf("build move buffer: %w", err)
			}

			audit, err := buildAuditStore(ctx, cfg.Store)
			if err != nil {
				return fmt.Errorf("build audit store: %w", err)
			}
			if audit != nil {
				defer audit.Close()
			}

			in, err := instance.New(ctx, instance.Config{
				ID: cfg.Daemon.InstanceID,
				Scheduler: scheduler.Config{
					TimeSlice:    cfg.Scheduler.TimeSlice,
					IdleInterval: cfg.Scheduler.IdleInterval,
					TickSleep:    cfg.Scheduler.TickSleep,
				},
				Fetcher:            fetcher.Config{RequestTimeout: cfg.Fetcher.RequestTimeout},
				RendererCloseGrace: cfg.Renderer.CloseGrace,
				MoveBuffer:         mb,
				MetricsNamespace:   cfg.Observability.Metrics.Namespace,
				AuditStore:         audit,
			})
			if err != nil {
				return fmt.Errorf("build instance: %w", err)
			}

			var restServer *http.Server
			if cfg.Renderer.RESTAddr != "" {
				restServer = &http.Server{Addr: cfg.Renderer.RESTAddr, Handler: rdrbridge.RESTHandler(in.Bridge())}
				go func() {
					logging.Op().Info("rest listener started", "addr", cfg.Renderer.RESTAddr)
					if err := restServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("rest listener failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					restServer.Shutdown(shutdownCtx)
				}()
			}

			var vsockListener net.Listener
			if cfg.Renderer.VsockAddr != "" {
				port, err := parseVsockPort(cfg.Renderer.VsockAddr)
				if err != nil {
					return fmt.Errorf("parse vsock addr: %w", err)
				}
				vsockListener, err = rdrbridge.ListenVsock(port)
				if err != nil {
					return fmt.Errorf("listen vsock: %w", err)
				}
				grpcServer := rdrbridge.NewServer(in.Bridge())
				go func() {
					logging.Op().Info("vsock listener started", "port", port)
					if err := grpcServer.Serve(vsockListener); err != nil {
						logging.Op().Error("vsock listener failed", "error", err)
					}
				}()
				defer grpcServer.Stop()
			}

			if cfg.Observability.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", in.Metrics().Handler())
				metricsServer := &http.Server{Addr: ":9090", Handler: mux}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Warn("metrics listener failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					metricsServer.Shutdown(shutdownCtx)
				}()
			}

			instance.RunUntilSignal(ctx, in)
			return nil
		},
	}
}

func parseVsockPort(addr string) (uint32, error) {
	var port uint32
	if _, err := fmt.Sscanf(addr, "vsock://:%d", &port); err != nil {
		return 0, fmt.Errorf("expected vsock://:<port>, got %q", addr)
	}
	return port, nil
}

func runCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run <file.hvml>",
		Short: "Load and execute a single HVML program, then exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initObservability(ctx, cfg); err != nil {
				return fmt.Errorf("init observability: %w", err)
			}
			defer observability.Shutdown(context.Background())

			root, err := vdom.ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			in, err := instance.New(ctx, instance.Config{
				ID: cfg.Daemon.InstanceID,
				Scheduler: scheduler.Config{
					TimeSlice:    cfg.Scheduler.TimeSlice,
					IdleInterval: cfg.Scheduler.IdleInterval,
					TickSleep:    cfg.Scheduler.TickSleep,
				},
				Fetcher:          fetcher.Config{RequestTimeout: cfg.Fetcher.RequestTimeout},
				MetricsNamespace: cfg.Observability.Metrics.Namespace,
			})
			if err != nil {
				return fmt.Errorf("build instance: %w", err)
			}

			co := in.Launch(args[0], root, 0)
			in.Run(ctx)

			fmt.Printf("coroutine exited: state=%s\n", co.State)
			if co.ResultValue != nil {
				fmt.Printf("result: %s\n", co.ResultValue.String())
			}
			if co.Exception != nil {
				fmt.Fprintf(os.Stderr, "unhandled exception: %s\n", atom.MSG.String(co.Exception.ErrorExcept))
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Maximum wall-clock time for the program to run")
	return cmd
}
