package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/battletimer/go/internal/config"
	"github.com/mcdev12/battletimer/go/internal/rpc"
	"github.com/mcdev12/battletimer/go/internal/timer"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var (
		server  = flag.String("server", cfg.ServerURL, "timerd base URL")
		actor   = flag.String("actor", os.Getenv("ACTOR_ID"), "actor id sent as "+rpc.ActorHeader)
		token   = flag.String("token", "", "timer token (roomId)")
		action  = flag.String("action", "", "start|pause|reset|increase|decrease|expire|get|provision|revoke|assign")
		value   = flag.Int("value", 0, "seconds for increase/decrease")
		holder  = flag.String("holder", "", "holder id for provision/assign")
		dur     = flag.Duration("duration", 0, "default duration for provision")
		timeout = flag.Duration("timeout", 10*time.Second, "request timeout")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *action == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := rpc.NewTimerClient(http.DefaultClient, *server)

	var out any
	switch *action {
	case "get":
		out, err = client.Snapshot(ctx, *token)
	case "provision":
		out, err = client.Provision(ctx, *actor, *token, *holder, *dur)
	case "revoke":
		err = client.Revoke(ctx, *actor, *token)
	case "assign":
		err = client.AssignHolder(ctx, *actor, *token, *holder)
	default:
		out, err = client.Control(ctx, *actor, timer.Command{
			Token:  *token,
			Action: timer.Action(*action),
			Value:  *value,
		})
	}
	if err != nil {
		log.Fatal().Err(err).Str("action", *action).Str("token", *token).Msg("request failed")
	}
	if out == nil {
		fmt.Println("ok")
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("failed to encode response")
	}
}
