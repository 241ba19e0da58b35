package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tasteshift/live/internal/adapters/directory"
	"github.com/tasteshift/live/internal/adapters/records"
	"github.com/tasteshift/live/internal/adapters/rtc"
	"github.com/tasteshift/live/internal/config"
	"github.com/tasteshift/live/internal/domain"
)

var (
	cfg     *config.Config
	user    *domain.User
	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "livecast",
	Short: "Broadcast or watch TasteShift live cooking sessions",
	Long: `livecast joins the TasteShift live directory as a broadcaster or a viewer.
Media flows peer to peer; the overlay shows the session status, likes and
the latest comments.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd.Flags(), map[string]string{
			"directory":         "live.directory_url",
			"api":               "live.api_url",
			"ice":               "live.ice_servers",
			"log-level":         "log_level",
			"collision-retries": "live.collision_retries",
		})
		if err != nil {
			return err
		}
		if err := setupLogging(cmd); err != nil {
			return err
		}

		uid, _ := cmd.Flags().GetString("user")
		handle, _ := cmd.Flags().GetString("name")
		user, err = domain.NewUser(domain.UserID(uid), handle)
		if err != nil {
			return fmt.Errorf("user: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	},
}

// Execute runs the root command. Ctrl+C cancels the running session.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("directory", "", "directory websocket URL")
	pf.String("api", "", "records API base URL")
	pf.StringSlice("ice", nil, "ICE server URLs")
	pf.String("log-level", "", "log level")
	pf.String("log-file", "livecast.log", "log file used while the overlay is on screen")
	pf.Int("collision-retries", 0, "fresh viewer identities to try after an id collision")
	pf.String("user", "", "your user id (random when empty)")
	pf.String("name", "guest", "name shown next to your comments")
	pf.Bool("plain", false, "line based output instead of the overlay")
	pf.Bool("ephemeral", false, "do not use a live record")
}

// setupLogging sends logs to stderr in plain mode and to the log file when
// the overlay owns the terminal.
func setupLogging(cmd *cobra.Command) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	plain, _ := cmd.Flags().GetBool("plain")
	if plain {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return nil
	}

	path, _ := cmd.Flags().GetString("log-file")
	if path == "" {
		log.Logger = zerolog.Nop()
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	logFile = f
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: f, NoColor: true})
	return nil
}

func directories() *directory.Provider {
	return directory.NewProvider(rtc.NewLoader(rtc.DefaultBuild), directory.Config{
		URL:        cfg.Live.DirectoryURL,
		ICEServers: cfg.Live.ICEServers,
	})
}

func recordsClient() *records.Client {
	return records.New(cfg.Live.APIURL)
}
