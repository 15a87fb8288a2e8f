package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ozarkconnect/linkpulse/internal/api/rest"
	"github.com/ozarkconnect/linkpulse/internal/codec"
	"github.com/ozarkconnect/linkpulse/internal/engine"
)

// uploadChunkSize matches the Driver's own fixed chunk size (spec.md §4.3)
// so a client-side throughput estimate lines up with the server's.
const uploadChunkSize = 64 * 1024

func runCmd() *cobra.Command {
	var (
		durationMs int
		aiInsights bool
		binary     bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a loaded-latency measurement test against a linkpulse-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, durationMs, aiInsights, binary, quiet)
		},
	}

	cmd.Flags().IntVar(&durationMs, "duration-ms", 10000, "bulk stage duration in milliseconds")
	cmd.Flags().BoolVar(&aiInsights, "ai-insights", false, "request AI-generated insights with the result")
	cmd.Flags().BoolVar(&binary, "binary", true, "use the compact binary wire encoding (false for the JSON fallback)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress progress output, print only the final result")

	return cmd
}

func runTest(cmd *cobra.Command, durationMs int, aiInsights, binary, quiet bool) error {
	var start rest.StartResponse
	err := postJSON("/api/test/enhanced/start", rest.StartRequest{
		IncludeAIInsights: aiInsights,
		UseBinaryProtocol: binary,
		DurationMs:        durationMs,
	}, &start)
	if err != nil {
		return fmt.Errorf("start test: %w", err)
	}
	cmd.Printf("%s test %s admitted by server %s\n", bold("→"), cyan(start.TestID), start.ServerID)

	wsURL, err := websocketURL(start.WebsocketURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	mode := codec.ModeBinary
	if !binary {
		mode = codec.ModeText
	}

	uploadStop := make(chan struct{})
	uploading := false

	for {
		wireType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("connection closed before results arrived: %w", err)
		}

		inMode := codec.ModeBinary
		if wireType == websocket.TextMessage {
			inMode = codec.ModeText
		}
		frame, err := codec.Decode(inMode, data)
		if err != nil {
			cmd.PrintErrf("%s dropping undecodable frame: %v\n", yellow("⚠"), err)
			continue
		}

		switch f := frame.(type) {
		case codec.PingFrame:
			pong := codec.PongFrame{Token: f.Token, TEchoMs: uint64(time.Now().UnixMilli())}
			if err := writeFrame(conn, mode, pong); err != nil {
				return fmt.Errorf("reply pong: %w", err)
			}

		case codec.BeginUploadFrame:
			if !uploading {
				uploading = true
				go uploadLoop(conn, mode, f, uploadStop)
			}

		case codec.EndUploadFrame:
			if uploading {
				close(uploadStop)
				uploading = false
			}

		case codec.ProgressFrame:
			if !quiet {
				printProgress(cmd, f)
			}

		case codec.WarningFrame:
			cmd.PrintErrf("%s %s: %s\n", yellow("⚠"), f.Kind, f.Message)

		case codec.ErrorFrame:
			return fmt.Errorf("%s: %s", f.Kind, f.Message)

		case codec.ResultsFrame:
			printResult(cmd, f.Result)
			return nil
		}
	}
}

// uploadLoop streams fixed-size DataFrame chunks until stop is closed
// (signaled by an inbound EndUploadFrame) or a write fails, mirroring
// runUploadDriver's counterpart on the server.
func uploadLoop(conn *websocket.Conn, mode codec.Mode, begin codec.BeginUploadFrame, stop <-chan struct{}) {
	chunk := make([]byte, uploadChunkSize)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := writeFrame(conn, mode, codec.DataFrame{Payload: chunk}); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, mode codec.Mode, f codec.Frame) error {
	payload, err := codec.Encode(mode, f)
	if err != nil {
		return err
	}
	wireType := websocket.BinaryMessage
	if mode == codec.ModeText {
		wireType = websocket.TextMessage
	}
	return conn.WriteMessage(wireType, payload)
}

func printProgress(cmd *cobra.Command, f codec.ProgressFrame) {
	stage := engine.Stage(f.Stage).String()
	line := fmt.Sprintf("  %-12s %3d%%  %6.1f Mbps", stage, f.Pct, float64(f.SpeedMbpsX10)/10)
	if f.HasLatency {
		line += fmt.Sprintf("  latency %s", colorLatency(float64(f.LatencyMsX10)/10))
	}
	cmd.Println(line)
}

func printResult(cmd *cobra.Command, r codec.CompactResult) {
	cmd.Printf("\n%s\n", bold("Result"))
	cmd.Printf("  Download   %s\n", colorMbps(float64(r.DownMbpsX10)/10))
	cmd.Printf("  Upload     %s\n", colorMbps(float64(r.UpMbpsX10)/10))
	cmd.Printf("  Latency    %s\n", colorLatency(float64(r.LatencyMsX10)/10))
	cmd.Printf("  Jitter     %s\n", colorLatency(float64(r.JitterMsX10)/10))
	cmd.Printf("  Duration   %.1fs\n", float64(r.DurationSecX10)/10)

	if r.HasLoadedLatency {
		cmd.Printf("\n%s\n", bold("Bufferbloat"))
		cmd.Printf("  Idle avg      %s\n", colorLatency(float64(r.IdleAvgMsX10)/10))
		cmd.Printf("  Download avg  %s\n", colorLatency(float64(r.DownloadAvgMsX10)/10))
		cmd.Printf("  Upload avg    %s\n", colorLatency(float64(r.UploadAvgMsX10)/10))
		cmd.Printf("  Grade         %s\n", colorGrade(gradeString("bufferbloat", r.BufferbloatGrade)))
	}

	if r.HasScores {
		cmd.Printf("\n%s\n", bold("Use-case scores"))
		cmd.Printf("  Gaming      %5.1f  %s\n", float64(r.GamingScoreX10)/10, colorGrade(gradeString("usecase", r.GamingGrade)))
		cmd.Printf("  Streaming   %5.1f  %s\n", float64(r.StreamingScoreX10)/10, colorGrade(gradeString("usecase", r.StreamingGrade)))
		cmd.Printf("  Video call  %5.1f  %s\n", float64(r.VideoScoreX10)/10, colorGrade(gradeString("usecase", r.VideoGrade)))
		cmd.Printf("  Browsing    %5.1f  %s\n", float64(r.BrowsingScoreX10)/10, colorGrade(gradeString("usecase", r.BrowsingGrade)))
		cmd.Printf("  Overall     %5.1f  %s\n", float64(r.OverallScoreX10)/10, colorGrade(gradeString("usecase", r.OverallGrade)))
		if r.PacketLossAssumed {
			cmd.Printf("  %s packet loss assumed during scoring\n", yellow("⚠"))
		}
	}

	if r.HasAIInsights {
		cmd.Printf("\n%s\n  %s\n", bold("AI insights"), r.AIInsights)
	}

	for _, note := range r.Notes {
		cmd.Printf("%s %s\n", yellow("note:"), note)
	}
}

func websocketURL(path string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url %s: %w", serverURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
