// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/cuedeck/internal/api/connect"
	"github.com/osa030/cuedeck/internal/app/workspace"
	"github.com/osa030/cuedeck/internal/domain/playlist"
	"github.com/osa030/cuedeck/internal/infra/beepsound"
	"github.com/osa030/cuedeck/internal/infra/config"
	"github.com/osa030/cuedeck/internal/infra/cuestore"
	"github.com/osa030/cuedeck/internal/infra/logger"
)

var (
	app        = kingpin.New("cuedeck-server", "cuedeck soundboard playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-cues command
	checkCmd  = app.Command("check-cues", "Validate a cue file and exit")
	checkFile = checkCmd.Arg("file", "Cue file (default: workspace.cues_file from config)").String()
)

func init() {
	// start command (default)
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	if command == checkCmd.FullCommand() {
		if err := checkCues(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			logCloser.Close()
			os.Exit(1)
		}
		return
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	snd, err := beepsound.New(beepsound.Config{
		SampleRate: cfg.Audio.SampleRate,
		Buffer:     cfg.Audio.Buffer(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to initialize audio")
	}
	defer snd.Close()

	ws := workspace.NewManager(cfg, snd)
	if err := ws.Start(context.Background()); err != nil {
		return errors.Wrap(err, "failed to open workspace")
	}

	remoteService := apiconnect.NewRemoteService(ws)
	remotePath, remoteHandler := apiconnect.NewRemoteServiceHandler(
		remoteService,
		connect.WithInterceptors(apiconnect.NewRemoteAuthInterceptor(cfg.Remote.Token)),
	)

	mux := http.NewServeMux()
	mux.Handle(remotePath, remoteHandler)

	// h2c (HTTP/2 cleartext) so streaming works without TLS
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-ws.Done():
		zlog.Info().Msg("Workspace closed, shutting down...")
	case err := <-serverErrCh:
		ws.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the workspace first so watch streams return
	ws.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// checkCues loads a cue file and reports every cue that cannot be played.
func checkCues() error {
	path := *checkFile
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		path = cfg.Workspace.CuesFile
	}

	store, err := cuestore.Open(path)
	if err != nil {
		return err
	}

	cues := store.List()
	problems := 0
	fmt.Printf("Cue file: %s (%d cues)\n", store.Path(), len(cues))
	for _, c := range cues {
		if err := c.Validate(); err != nil {
			problems++
			fmt.Printf("  %-20s INVALID  %v\n", c.ID, err)
			continue
		}
		var missing []string
		for _, p := range c.Paths() {
			if _, err := os.Stat(p); err != nil {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			problems++
			fmt.Printf("  %-20s MISSING  %v\n", c.ID, missing)
			continue
		}
		if c.IsPlaylist() {
			if dup := duplicateIDs(playlist.ItemIDs(c.Items)); len(dup) > 0 {
				problems++
				fmt.Printf("  %-20s DUPLICATE item ids %v\n", c.ID, dup)
				continue
			}
			fmt.Printf("  %-20s ok       %s (%d items, %s known)\n",
				c.ID, c.DisplayName(), len(c.Items), playlist.TotalDuration(c.Items))
			continue
		}
		fmt.Printf("  %-20s ok       %s\n", c.ID, c.DisplayName())
	}

	if problems > 0 {
		return errors.Newf("%d of %d cues have problems", problems, len(cues))
	}
	return nil
}

func duplicateIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var dup []string
	for _, id := range ids {
		if seen[id] {
			dup = append(dup, id)
		}
		seen[id] = true
	}
	return dup
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
