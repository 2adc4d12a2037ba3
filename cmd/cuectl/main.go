// Package main provides the remote control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/cuedeck/internal/api/connect"
)

var (
	app    = kingpin.New("cuectl", "cuedeck remote control")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Remote token (or set CUEDECK_REMOTE_TOKEN env)").Envar("CUEDECK_REMOTE_TOKEN").String()

	toggleCmd       = app.Command("toggle", "Trigger a cue")
	toggleCue       = toggleCmd.Arg("cue-id", "Cue ID").Required().String()
	toggleRetrigger = toggleCmd.Flag("retrigger", "Override the cue's retrigger behavior").
			Enum("restart", "stop", "fade_out_and_stop", "fade_stop_restart", "toggle_pause", "play_new_instance", "do_nothing")

	playCmd = app.Command("play", "Play a cue from the beginning")
	playCue = playCmd.Arg("cue-id", "Cue ID").Required().String()

	resumeCmd = app.Command("resume", "Resume a paused or cued cue")
	resumeCue = resumeCmd.Arg("cue-id", "Cue ID").Required().String()

	stopCmd  = app.Command("stop", "Stop a cue")
	stopCue  = stopCmd.Arg("cue-id", "Cue ID").Required().String()
	stopFade = stopCmd.Flag("fade", "Fade out before stopping").Bool()

	pauseCmd = app.Command("pause", "Pause a cue")
	pauseCue = pauseCmd.Arg("cue-id", "Cue ID").Required().String()

	stopAllCmd  = app.Command("stop-all", "Stop every cue").Alias("panic")
	stopAllFade = stopAllCmd.Flag("fade", "Fade out before stopping").Default("true").Bool()

	seekCmd = app.Command("seek", "Seek a cue")
	seekCue = seekCmd.Arg("cue-id", "Cue ID").Required().String()
	seekPos = seekCmd.Arg("position", "Position from the trim start (e.g. 1m30s)").Required().Duration()

	nextCmd = app.Command("next", "Move a playlist to its next item")
	nextCue = nextCmd.Arg("cue-id", "Cue ID").Required().String()

	prevCmd = app.Command("prev", "Move a playlist to its previous item").Alias("previous")
	prevCue = prevCmd.Arg("cue-id", "Cue ID").Required().String()

	stateCmd = app.Command("state", "Show active cues").Alias("status")
	stateCue = stateCmd.Arg("cue-id", "Cue ID (default: all active cues)").String()

	openCmd  = app.Command("open", "Switch the server to another cue file")
	openPath = openCmd.Arg("path", "Cue file path on the server").Required().String()

	watchCmd = app.Command("watch", "Stream playback events")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: remote token is required (use --token or CUEDECK_REMOTE_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case toggleCmd.FullCommand():
		err = report(client.Toggle(ctx, *toggleCue, *toggleRetrigger), "Toggled %s", *toggleCue)
	case playCmd.FullCommand():
		err = report(client.Play(ctx, *playCue), "Playing %s", *playCue)
	case resumeCmd.FullCommand():
		err = report(client.Resume(ctx, *resumeCue), "Resumed %s", *resumeCue)
	case stopCmd.FullCommand():
		err = report(client.Stop(ctx, *stopCue, *stopFade), "Stopping %s", *stopCue)
	case pauseCmd.FullCommand():
		err = report(client.Pause(ctx, *pauseCue), "Paused %s", *pauseCue)
	case stopAllCmd.FullCommand():
		err = report(client.StopAll(ctx, *stopAllFade), "Stopping all cues")
	case seekCmd.FullCommand():
		err = report(client.Seek(ctx, *seekCue, *seekPos), "Seeked %s to %s", *seekCue, *seekPos)
	case nextCmd.FullCommand():
		err = report(client.Next(ctx, *nextCue), "Next item on %s", *nextCue)
	case prevCmd.FullCommand():
		err = report(client.Previous(ctx, *prevCue), "Previous item on %s", *prevCue)
	case stateCmd.FullCommand():
		err = state(ctx, client, *stateCue)
	case openCmd.FullCommand():
		var path string
		if path, err = client.OpenWorkspace(ctx, *openPath); err == nil {
			fmt.Printf("Workspace: %s\n", path)
		}
	case watchCmd.FullCommand():
		err = client.Watch(ctx, printEvent)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func report(err error, format string, args ...any) error {
	if err != nil {
		return err
	}
	fmt.Printf(format+"\n", args...)
	return nil
}

func state(ctx context.Context, client *apiconnect.Client, cueID string) error {
	s, err := client.State(ctx, cueID)
	if err != nil {
		return err
	}

	fmt.Printf("\nWorkspace: %v\n", s["workspace"])
	cues, _ := s["cues"].([]any)
	if len(cues) == 0 {
		fmt.Println("No active cues")
		return nil
	}
	for _, item := range cues {
		c, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fmt.Printf("\n%v (%v)\n", c["cue_id"], c["cue_name"])
		fmt.Printf("  State: %s\n", formatPhase(c))
		fmt.Printf("  Position: %s / %s (remaining %s)\n",
			formatMs(c["position_ms"]), formatMs(c["duration_ms"]), formatMs(c["remaining_ms"]))
		if n, _ := c["item_count"].(float64); n > 0 {
			idx, _ := c["item_index"].(float64)
			fmt.Printf("  Item: %d/%d %v (next: %v)\n", int(idx)+1, int(n), c["current_item_name"], c["next_item_name"])
			if c["is_shuffled"] == true {
				fmt.Println("  Order: shuffled")
			}
		}
		if c["is_ducked"] == true {
			fmt.Printf("  Ducked by: %v\n", c["ducked_by"])
		}
		if n, _ := c["instances"].(float64); n > 0 {
			fmt.Printf("  Instances: %d\n", int(n))
		}
	}
	fmt.Println()
	return nil
}

func printEvent(m map[string]any) {
	if m["type"] == "initial_state" {
		cues, _ := m["cues"].([]any)
		fmt.Printf("#%v connected: workspace=%v active=%d\n", m["sequence_no"], m["workspace"], len(cues))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#%v %-19v %v", m["sequence_no"], m["type"], m["cue_id"])
	switch m["type"] {
	case "status":
		fmt.Fprintf(&b, " %v", m["status"])
		if d, ok := m["details"]; ok {
			fmt.Fprintf(&b, " (%v)", d)
		}
	case "time_update":
		fmt.Fprintf(&b, " %s / %s", formatMs(m["position_ms"]), formatMs(m["duration_ms"]))
	case "duration_discovered":
		fmt.Fprintf(&b, " %s", formatMs(m["duration_ms"]))
	}
	if name, ok := m["item_name"]; ok {
		fmt.Fprintf(&b, " item=%v", name)
	}
	fmt.Println(b.String())
}

func formatPhase(c map[string]any) string {
	state := fmt.Sprint(c["phase"])
	switch {
	case c["is_fading_in"] == true:
		state += " (fading in)"
	case c["is_fading_out"] == true:
		state += " (fading out)"
	}
	return state
}

func formatMs(v any) string {
	ms, _ := v.(float64)
	return (time.Duration(ms) * time.Millisecond).Truncate(100 * time.Millisecond).String()
}
