package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/telemetry"
)

var (
	configPath  string
	windowFlag  string
	jsonFlag    bool
	textFlag    bool
	verboseFlag bool // Enable verbose/debug output
	quietFlag   bool // Suppress non-essential output

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "messages", Title: "Messages & Topics:"})
	rootCmd.AddGroup(&cobra.Group{ID: "views", Title: "Views & Feeds:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})

	rootCmd.PersistentFlags().BoolVarP(&jsonFlag, "json", "j", false, "Force JSON output")
	rootCmd.PersistentFlags().BoolVar(&textFlag, "text", false, "Force text output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: nearest .liquid-mail.toml, then ~/.liquid-mail.toml)")
	rootCmd.PersistentFlags().StringVar(&windowFlag, "window", "", "Window id (default: $LIQUID_MAIL_WINDOW_ID)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.MarkFlagsMutuallyExclusive("json", "text")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return lmerr.InvalidInput("%v", err).WithSuggestions("Run liquid-mail --help")
	})
}

var rootCmd = &cobra.Command{
	Use:           "liquid-mail",
	Short:         "liquid-mail - shared topic log for agent windows",
	Long:          `Many agent windows, one conversational log. Posts are routed to topics by search-based voting; windows pin topics and watch them for new messages.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			return printVersion()
		}
		return cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := telemetry.Init(ctx, "liquid-mail", Version); err != nil {
		WarnError("telemetry disabled: %v", err)
	}

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if serr := telemetry.Shutdown(context.Background()); serr != nil {
		debug.Logf("telemetry shutdown: %v", serr)
	}
	if err != nil {
		os.Exit(reportError(classify(err)))
	}
}

// classify turns cobra's own argument errors into typed errors.
func classify(err error) error {
	var e *lmerr.Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return lmerr.New(lmerr.CodeUnexpected, 130, false, "interrupted")
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "unknown command") {
		name := msg
		if parts := strings.SplitN(msg, `"`, 3); len(parts) == 3 {
			name = parts[1]
		}
		return lmerr.UnknownCommand(name)
	}
	if strings.Contains(msg, "arg(s)") || strings.HasPrefix(msg, "if any flags in the group") {
		return lmerr.InvalidInput("%s", msg).WithSuggestions("Run liquid-mail --help")
	}
	return err
}
