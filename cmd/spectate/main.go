// Command spectate follows a draft from the command line, logging every
// snapshot the server pushes. It reconnects on its own until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/client"
	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "draft websocket URL")
	sessionID := flag.String("session", "", "session code to follow")
	role := flag.String("role", string(protocol.RoleSpectator), "role to join as (spectator, overlay)")
	backoff := flag.Duration("backoff", client.DefaultBackoff, "wait between reconnect attempts")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *sessionID == "" {
		fmt.Fprintln(os.Stderr, "-session is required")
		os.Exit(2)
	}
	r, ok := protocol.ParseRole(*role)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	zc := zap.NewDevelopmentConfig()
	if !*debug {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.New(client.Options{
		URL:       *url,
		SessionID: *sessionID,
		Role:      r,
		Backoff:   client.FixedBackoff(*backoff),
		Logger:    logger,
		OnState:   func(st engine.State) { logSnapshot(logger, st) },
		OnError: func(p protocol.ErrorPayload) {
			logger.Warn("server error", zap.String("code", p.Code), zap.String("message", p.Message))
		},
		OnConnState: func(s client.ConnState) {
			logger.Info("connection", zap.Stringer("state", s))
		},
	})

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("spectator stopped", zap.Error(err))
	}
}

func logSnapshot(log *zap.Logger, st engine.State) {
	fields := []zap.Field{
		zap.String("phase", string(st.Phase)),
		zap.Int("turn", st.TurnNumber),
		zap.Int("version", st.Version),
		zap.Ints("blue_bans", st.Teams.Blue.Bans),
		zap.Ints("red_bans", st.Teams.Red.Bans),
		zap.Ints("blue_picks", st.Teams.Blue.Picks),
		zap.Ints("red_picks", st.Teams.Red.Picks),
	}
	if st.Timer.IsActive {
		fields = append(fields, zap.Duration("remaining", time.Duration(st.Timer.RemainingMs)*time.Millisecond))
	}
	if cur := st.CurrentTurn; cur != nil {
		fields = append(fields, zap.String("on_clock", string(cur.Team)), zap.String("action", string(cur.Action)))
	}
	log.Info("snapshot", fields...)
}
