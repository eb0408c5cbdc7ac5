package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Stalker400n/psi1-sub000/internal/config"
	"github.com/Stalker400n/psi1-sub000/internal/reconciler"
)

// viewer follows a team headlessly: it keeps a simulated player in sync and
// logs where it is.
func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	teamID := flag.String("team", "", "team id (overrides TEAM_ID)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("viewer: %v", err)
	}
	vc := cfg.Viewer
	if *teamID != "" {
		vc.TeamID = *teamID
	}
	if vc.TeamID == "" {
		log.Fatalf("viewer: TEAM_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	player := reconciler.NewSimulatedPlayer()
	rec := reconciler.New(player, reconciler.Options{
		DriftThreshold: vc.DriftThreshold,
		PollInterval:   vc.PollInterval,
		ResyncInterval: vc.ResyncInterval,
	})
	session := reconciler.NewSession(vc.ServerURL, vc.TeamID, rec)

	go report(ctx, player, rec, vc.ResyncInterval)

	log.Printf("viewer: following team %s at %s", vc.TeamID, vc.ServerURL)
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("viewer: %v", err)
	}
}

func report(ctx context.Context, player *reconciler.SimulatedPlayer, rec *reconciler.Reconciler, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drift, ok := rec.Drift()
			if !ok {
				log.Printf("viewer: waiting for state")
				continue
			}
			log.Printf("viewer: song=%d playing=%t position=%.1fs drift=%+.2fs",
				player.Song(), player.Playing(), player.Position(), drift)
		}
	}
}
