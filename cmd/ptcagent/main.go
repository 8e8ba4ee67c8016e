package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"ptcagent/internal/config"
	"ptcagent/internal/logging"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	cfgFile     string
	assistantID string
	serverURL   string
	threadID    string
	autoApprove bool
	planMode    bool
	sandboxHost string
	workDir     string
	logLevel    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ptcagent",
		Short: "Interactive client for a programmatic tool calling agent",
		Long: `ptcagent streams agent turns from a LangGraph-compatible agent server,
renders the response as it arrives, asks for approval of submitted plans,
and reconnects the sandbox when it goes away mid-turn.`,
		SilenceUsage: true,
		RunE:         runApp,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ptcagent/config.yaml)")
	flags.StringVar(&assistantID, "agent", "", "assistant id to run (default is ptc-agent)")
	flags.StringVar(&serverURL, "server", "", "agent server URL")
	flags.StringVar(&threadID, "thread", "", "resume an existing conversation thread")
	flags.BoolVar(&autoApprove, "auto-approve", false, "approve submitted plans without asking")
	flags.BoolVar(&planMode, "plan-mode", false, "require a reviewed plan before write operations")
	flags.StringVar(&sandboxHost, "sandbox-host", "", "use the SSH sandbox on this host")
	flags.StringVar(&workDir, "workdir", "", "use a local directory as the sandbox")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ptcagent version %s\n", version)
		},
	})

	// The first Ctrl+C outside a prompt ends the session.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	agentName := cfg.Server.AssistantID
	retention := time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour
	logPath, err := logging.EnableSessionLogging(cfg.Logging.Dir, agentName,
		logging.ParseLevel(cfg.Logging.Level), retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: session logging disabled: %v\n", err)
	}
	defer logging.Close()

	app, err := newApp(cmd.Context(), cfg, logPath)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer app.Close()

	return app.Run(cmd.Context())
}

// applyFlags overrides configuration with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if assistantID != "" {
		cfg.Server.AssistantID = assistantID
	}
	if flags.Changed("auto-approve") {
		cfg.Session.AutoApprove = autoApprove
	}
	if flags.Changed("plan-mode") {
		cfg.Session.PlanMode = planMode
	}
	if sandboxHost != "" {
		cfg.Sandbox.Mode = "ssh"
		cfg.Sandbox.SSH.Host = sandboxHost
	}
	if workDir != "" {
		cfg.Sandbox.Mode = "local"
		cfg.Sandbox.Local.Root = workDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
