package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/rpcgate/internal/app"
	"github.com/dropDatabas3/rpcgate/internal/config"
	"github.com/dropDatabas3/rpcgate/internal/keys"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
	"github.com/dropDatabas3/rpcgate/internal/util"
	"github.com/dropDatabas3/rpcgate/internal/util/atomicwrite"
)

// version se pisa en build con -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	loadConfig := func() (*config.Config, error) {
		// .env es opcional
		_ = godotenv.Load()
		path := configPath
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}

	root := &cobra.Command{
		Use:           "rpcgate",
		Short:         "Gateway JSON-RPC con API keys, rate limit y cache delante de un nodo",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), loadConfig)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Archivo de configuración (env CONFIG_PATH, default ./config.json)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el gateway y el listener de administración",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), loadConfig)
		},
	}

	// config
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Operaciones sobre la configuración",
	}
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Imprime la configuración resuelta (YAML, secretos enmascarados)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	configCmd.AddCommand(printCmd)

	// keys
	var show bool
	var outFile string
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Operaciones sobre la fuente remota de API keys",
	}
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Descarga una vez las keys remotas y muestra cuántas hay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.RemoteKeys.URL == "" {
				return fmt.Errorf("remoteKeys.url (REMOTE_KEYS_URL) no configurada")
			}
			f := keys.NewHTTPFetcher(cfg.RemoteKeys.URL, cfg.RemoteKeys.Authorization, cfg.RemoteKeys.TimeoutDuration())
			list, err := f.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "keys=%d\n", len(list))
			if show {
				for _, k := range util.MaskKeys(list) {
					fmt.Fprintln(w, k)
				}
			}
			if outFile != "" {
				b, err := json.Marshal(list)
				if err != nil {
					return err
				}
				if err := atomicwrite.WriteFile(outFile, b, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(w, "written to %s\n", outFile)
			}
			return nil
		},
	}
	fetchCmd.Flags().BoolVar(&show, "show", false, "Listar las keys (enmascaradas)")
	fetchCmd.Flags().StringVar(&outFile, "out", "", "Guardar las keys como JSON (formato de AVAILABLE_KEYS)")
	keysCmd.AddCommand(fetchCmd)

	root.AddCommand(serveCmd, configCmd, keysCmd)
	return root
}

func runServe(parent context.Context, loadConfig func() (*config.Config, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Env:         cfg.Logs.Env,
		Level:       cfg.Logs.Level,
		ServiceName: "rpcgate",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", logger.Err(err))
		return err
	}
	if os.Getenv("PRINT_CONFIG") != "" {
		log.Info("resolved configuration", logger.Any("config", cfg.Masked()))
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, app.Options{Version: version})
	if err != nil {
		log.Error("startup failed", logger.Err(err))
		return err
	}
	if err := a.Run(ctx); err != nil {
		log.Error("gateway stopped with error", logger.Err(err))
		return err
	}
	log.Info("gateway stopped")
	return nil
}
