package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mcdev12/battletimer/go/internal/config"
	"github.com/mcdev12/battletimer/go/internal/rpc"
)

// seedTimer is one timer to provision. DefaultDurationSec of zero uses the
// server default.
type seedTimer struct {
	Token              string `json:"roomId"`
	OwnerID            string `json:"ownerId"`
	HolderID           string `json:"holderId"`
	DefaultDurationSec int    `json:"defaultDurationSec"`
}

func main() {
	ctx := context.Background()

	path := "go/internal/assets/timers.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// 1) Load timers.json
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}
	var timers []seedTimer
	if err := json.Unmarshal(data, &timers); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal timers: %v\n", err)
		os.Exit(1)
	}

	// 2) Provision through timerd so state and ownership are written together
	client := rpc.NewTimerClient(&http.Client{Timeout: 10 * time.Second}, cfg.ServerURL)

	total, provisioned, errs := len(timers), 0, 0
	for _, t := range timers {
		snap, err := client.Provision(ctx, t.OwnerID, t.Token, t.HolderID,
			time.Duration(t.DefaultDurationSec)*time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "provision %q: %v\n", t.Token, err)
			errs++
			continue
		}
		fmt.Printf("%s\t%s\n", snap.Token, time.Duration(snap.RemainingMs)*time.Millisecond)
		provisioned++
	}
	fmt.Printf(
		"Timers seed: total=%d provisioned=%d errors=%d\n",
		total, provisioned, errs,
	)
}
