package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"feasibility-bot/internal/browser"
	"feasibility-bot/internal/config"
	"feasibility-bot/internal/feasibility"
	"feasibility-bot/internal/logging"
	"feasibility-bot/internal/messenger"
	"feasibility-bot/internal/telegram"
)

var (
	cfgFile     string
	logLevel    string
	askPassword bool
	outDir      string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "feasibility",
		Short: "Checks service feasibility for an address on the operator portal",
		Long: `feasibility drives a headless browser through the operator portal: it logs in,
enters the address, picks the matching autocomplete suggestion, confirms the
form and reports the result with a screenshot.

Settings come from an optional YAML file, a .env file and the environment
(WOM_LOGIN_URL, WOM_DIRECCION_URL, WOM_USER, WOM_PASS, ...).`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&askPassword, "ask-password", false, "prompt for the portal password when it is not configured")

	root.AddCommand(runCmd())
	root.AddCommand(botCmd())
	return root
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   `run "<region>, <commune>, <street>, <number>[, <tower>, <unit>]"`,
		Short: "Run a single feasibility check and print the result",
		Example: `  feasibility run "Metropolitana, Santiago, Av. Libertad, 100"
  feasibility run --out ./shots "Valparaíso, Viña del Mar, Calle Nueva, 5, B, 1204"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := feasibility.NewOrchestrator(*cfg, browser.NewLauncher(cfg.Browser), logger)
			report := orch.Run(ctx, strings.Join(args, " "), messenger.NewConsole(cmd.OutOrStdout(), outDir))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 60))
			fmt.Fprintf(out, "Run:      %s\n", report.RunID)
			fmt.Fprintf(out, "Outcome:  %s\n", report.Outcome)
			fmt.Fprintf(out, "Duration: %v\n", report.Duration.Round(time.Millisecond))
			if !report.Succeeded() {
				fmt.Fprintf(out, "Error:    %v\n", report.Err)
				return fmt.Errorf("feasibility check failed: %w", report.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "screenshots", "directory for result screenshots (empty to skip saving)")
	return cmd
}

func botCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Serve feasibility checks over Telegram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Telegram.BotToken == "" {
				return errors.New("TELEGRAM_BOT_TOKEN is not set")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := feasibility.NewOrchestrator(*cfg, browser.NewLauncher(cfg.Browser), logger)
			limiter := feasibility.NewLimiter(cfg.MaxConcurrentChecks)
			return telegram.NewBot(cfg.Telegram, orch, limiter, logger).Run(ctx)
		},
	}
}

// setup loads the configuration and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if askPassword && cfg.Portal.Password == "" {
		pass, err := readPassword(fmt.Sprintf("Password for %s: ", cfg.Portal.Username))
		if err != nil {
			return nil, nil, err
		}
		cfg.Portal.Password = pass
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-password needs an interactive terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(pass)), nil
}
