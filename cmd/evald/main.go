package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"evald/internal/backend"
	"evald/internal/config"
	"evald/internal/device"
	"evald/internal/httpapi"
	"evald/internal/plan"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRootCmd constructs the evald command tree: serve, plan, options.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "evald",
		Short:         "Backend configuration and parallelism resolver for model evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Flags with environment variable defaults
	defaultAddr := ":8080"
	if v := os.Getenv("EVALD_ADDR"); v != "" {
		defaultAddr = v
	}
	root.PersistentFlags().String("config", "", "Optional config file (.yaml/.yml/.json/.toml)")
	root.PersistentFlags().String("addr", defaultAddr, "HTTP listen address, e.g. :8080")
	root.PersistentFlags().String("backend", backend.SimName, "Backend to construct: sim|vllm|llama")
	root.PersistentFlags().String("model-args", "", "Comma separated key=value model args, e.g. pretrained=org/model,dtype=float16")
	root.PersistentFlags().Int("devices", 0, "Visible device count (0 = honor "+device.EnvVisibleDevices+")")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|error|off")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Resolve the backend and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(rc)
		},
	}

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved parallelism plan without starting engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return runPlan(rc, cmd.OutOrStdout())
		},
	}

	optionsCmd := &cobra.Command{
		Use:   "options",
		Short: "List the recognized model args and their defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, line := range config.OptionTable() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	root.AddCommand(serveCmd, planCmd, optionsCmd)
	return root
}

// resolveConfig merges an optional config file with command line flags.
// A flag set on the command line wins over the file value.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	var rc config.Config
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return rc, fmt.Errorf("load config: %w", err)
		}
		rc = loaded
	}
	if v, _ := flags.GetString("addr"); flags.Changed("addr") || rc.Addr == "" {
		rc.Addr = v
	}
	if v, _ := flags.GetString("backend"); flags.Changed("backend") || rc.Backend == "" {
		rc.Backend = v
	}
	if v, _ := flags.GetString("model-args"); flags.Changed("model-args") || rc.ModelArgs == "" {
		rc.ModelArgs = v
	}
	if v, _ := flags.GetInt("devices"); flags.Changed("devices") || rc.Devices == 0 {
		rc.Devices = v
	}
	if v, _ := flags.GetString("log-level"); flags.Changed("log-level") || rc.LogLevel == "" {
		rc.LogLevel = v
	}
	return rc, nil
}

// resolve parses model args and plans parallelism over the visible devices.
func resolve(rc config.Config) (config.BackendConfig, plan.ParallelismPlan, plan.ResourceBudget, error) {
	raw, err := splitModelArgs(rc.ModelArgs)
	if err != nil {
		return config.BackendConfig{}, plan.ParallelismPlan{}, plan.ResourceBudget{}, err
	}
	bc, err := config.ParseModelArgs(raw)
	if err != nil {
		return config.BackendConfig{}, plan.ParallelismPlan{}, plan.ResourceBudget{}, err
	}
	visible, err := device.Visible(rc.Devices)
	if err != nil {
		return config.BackendConfig{}, plan.ParallelismPlan{}, plan.ResourceBudget{}, err
	}
	p, err := plan.Parallelism(bc, visible)
	if err != nil {
		return config.BackendConfig{}, plan.ParallelismPlan{}, plan.ResourceBudget{}, err
	}
	return bc, p, plan.Budget(bc, p), nil
}

func runPlan(rc config.Config, out io.Writer) error {
	bc, p, budget, err := resolve(rc)
	if err != nil {
		return err
	}
	engines := make([]backend.Engine, p.NumReplicas())
	h, err := backend.NewFromEngines(rc.Backend, bc, p, budget, engines)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(h.PlanView())
}

func runServe(rc config.Config) error {
	bc, p, budget, err := resolve(rc)
	if err != nil {
		return err
	}
	factory, err := backend.Builtin().Get(rc.Backend)
	if err != nil {
		return err
	}
	init, err := factory(bc, budget)
	if err != nil {
		return err
	}

	logger := newLogger(rc.LogLevel)
	httpapi.SetLogger(logger)
	if len(p.Idle) > 0 {
		logger.Warn().
			Str("devices", device.CSV(p.Idle)).
			Msg("plan leaves visible devices idle")
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	initCtx, cancelInit := context.WithTimeout(baseCtx, 5*time.Minute)
	handle, err := backend.New(initCtx, rc.Backend, bc, p, budget, init)
	cancelInit()
	if err != nil {
		return fmt.Errorf("initialize backend %q: %w", rc.Backend, err)
	}
	defer handle.Close()

	mux := httpapi.NewMux(handle)
	srv := &http.Server{Addr: rc.Addr, Handler: mux}

	go func() {
		logger.Info().
			Str("addr", rc.Addr).
			Str("backend", handle.Backend()).
			Int("replicas", p.NumReplicas()).
			Msg("evald listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// newLogger builds the process logger. "off" disables output entirely.
func newLogger(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch level {
	case "":
	case "off":
		lvl = zerolog.Disabled
	default:
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "evald").Logger().Level(lvl)
}
