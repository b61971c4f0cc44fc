package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/battletimer/go/clients"
	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/mcdev12/battletimer/go/internal/config"
	"github.com/mcdev12/battletimer/go/internal/gateway"
	"github.com/mcdev12/battletimer/go/internal/projector"
	"github.com/mcdev12/battletimer/go/internal/timer"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var (
		addr    = flag.String("url", envOr("GATEWAY_URL", "ws://localhost:8080/ws"), "websocket gateway URL")
		actor   = flag.String("actor", os.Getenv("ACTOR_ID"), "actor id")
		token   = flag.String("token", "", "timer token to watch")
		refresh = flag.Duration("refresh", cfg.Tuning.RefreshInterval, "render interval")
		guild   = flag.String("guild", "", "print this guild's battle countdown before watching")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *token == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *guild != "" {
		if err := printSchedule(ctx, *addr, *guild); err != nil {
			log.Warn().Err(err).Str("guild_id", *guild).Msg("failed to fetch schedule")
		}
	}

	if err := watch(ctx, *addr, *actor, *token, *refresh); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Str("token", *token).Msg("watch failed")
	}
}

func watch(ctx context.Context, addr, actor, token string, refresh time.Duration) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	if actor != "" {
		q.Set("actor", actor)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if actor != "" {
		header.Set(gateway.ActorHeader, actor)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	defer conn.Close()
	log.Info().Str("url", u.Redacted()).Str("token", token).Msg("connected to gateway")

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	// The read loop below is the only reader; writes come from the projector
	// goroutine and are serialized here.
	var writeMu sync.Mutex
	expire := func(ctx context.Context, token string) error {
		data, err := json.Marshal(timer.Command{Token: token, Action: timer.ActionExpire})
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(gateway.ClientMessage{
			Type:      gateway.TypeTimerControl,
			RequestID: uuid.NewString(),
			Data:      data,
		})
	}

	p := projector.New(token, expire,
		projector.WithClock(clockwork.NewRealClock()),
		projector.WithRefresh(refresh),
		projector.WithRender(render),
	)

	updates := make(chan clock.State, 16)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, updates) }()

	defer close(updates)
	for {
		var msg gateway.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch msg.Type {
		case gateway.TypeSnapshot, gateway.TypeEvent:
			if msg.Event == broadcast.TimerRemovedEvent(token) {
				fmt.Println("timer removed")
				return nil
			}
			var state clock.State
			if err := json.Unmarshal(msg.Data, &state); err != nil {
				log.Warn().Err(err).Str("event", msg.Event).Msg("ignoring malformed state")
				continue
			}
			select {
			case updates <- state:
			case err := <-done:
				return err
			}
		case gateway.TypeError:
			log.Warn().Str("code", string(msg.Code)).Str("request_id", msg.RequestID).Msg(msg.Message)
		}
	}
}

// printSchedule reads the guild's schedule from the gateway's HTTP routes,
// which share a host with the websocket endpoint.
func printSchedule(ctx context.Context, addr, guildID string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery = "", ""

	view, err := clients.NewStateClient(u.String()).GetSchedule(ctx, guildID)
	if err != nil {
		return err
	}

	fmt.Printf("%s  slot %s  dates %s\n", view.GuildID, view.Slot.Label(), strings.Join(view.Dates, ", "))
	cd := view.Countdown
	switch {
	case cd.Active:
		fmt.Printf("battle in progress, ends in %s\n", cd.EndsIn.Round(time.Second))
	case cd.Scheduled:
		fmt.Printf("next battle %s, starts in %s\n", cd.Next.Format(time.RFC1123), cd.StartsIn.Round(time.Second))
	default:
		fmt.Println("no battle scheduled")
	}
	return nil
}

func render(f projector.Frame) {
	status := "paused"
	switch {
	case f.Expiring:
		status = "expiring"
	case f.State.IsRunning:
		status = "running"
	}
	total := f.Remaining.Round(time.Second)
	fmt.Printf("\r%s  %02d:%02d  %-8s rev=%d ", f.Token,
		int(total.Minutes()), int(total.Seconds())%60, status, f.State.Revision)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
