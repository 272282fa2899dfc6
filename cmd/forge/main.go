package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/daemon"
	"github.com/forgeapp/forge/internal/utils"
	"github.com/forgeapp/forge/internal/version"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "forge",
	Short:   "Forge keeps client websites deployed and in sync",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true
		color.New(color.FgHiCyan, color.Bold).Println(version.ShortWithApp())

		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return d.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("datadir", "d", config.DefaultDataDir, "Forge data directory")
	rootCmd.Flags().StringP("bind", "b", config.DefaultBindAddr, "control plane bind address")
	rootCmd.Flags().StringP("token", "t", "", "control plane auth token")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Forge config file")
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(filepath.Join(home, ".forge"))
		viper.AddConfigPath(filepath.Join(home, ".config/forge"))
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	if f := cmd.Flags().Lookup("datadir"); f != nil {
		viper.BindPFlag("data_dir", f)
	}
	if f := cmd.Flags().Lookup("bind"); f != nil {
		viper.BindPFlag("bind_addr", f)
	}
	if f := cmd.Flags().Lookup("token"); f != nil {
		viper.BindPFlag("auth_token", f)
	}

	viper.SetEnvPrefix("FORGE")
	viper.AutomaticEnv()

	return nil
}

// buildConfig materializes the merged viper state into a validated config.
func buildConfig() (*config.Config, error) {
	cfg := &config.Config{
		Path:      viper.ConfigFileUsed(),
		DataDir:   viper.GetString("data_dir"),
		BindAddr:  viper.GetString("bind_addr"),
		AuthToken: viper.GetString("auth_token"),
	}
	if err := viper.UnmarshalKey("projects", &cfg.Projects); err != nil {
		return nil, fmt.Errorf("config projects: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging() (io.Closer, error) {
	logFile := config.DefaultLogFile
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	interceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// The interceptor stamps its own time on each line.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
