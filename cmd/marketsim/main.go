// Command marketsim runs the standalone used-equipment marketplace simulator.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/halvard/usedmarket/internal/api"
	"github.com/halvard/usedmarket/internal/catalog"
	"github.com/halvard/usedmarket/internal/engine"
	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/host"
	"github.com/halvard/usedmarket/internal/persistence"
	"github.com/halvard/usedmarket/internal/weather"
)

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		slog.Warn("ignoring malformed env value", "key", key, "value", v)
	}
	return fallback
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("usedmarket — secondhand equipment marketplace simulator")

	seed := envInt64("MARKETSIM_SEED", 42)
	dbPath := envString("MARKETSIM_DB", "data/market.db")
	apiPort := int(envInt64("MARKETSIM_PORT", 8080))
	startingBalance := float64(envInt64("MARKETSIM_BALANCE", 250000))

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(dbPath), 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Weather ───────────────────────────────────────────────────────
	var wx weather.Source = weather.Static(weather.Clear)
	if key := os.Getenv("WEATHER_API_KEY"); key != "" {
		location := envString("WEATHER_LOCATION", "Des Moines,US")
		if client := weather.NewClient(key, location); client != nil {
			wx = client
			slog.Info("live weather enabled", "location", location)
		}
	} else {
		slog.Warn("WEATHER_API_KEY not set, weather pinned to clear")
	}

	// ── Session ───────────────────────────────────────────────────────
	balances := map[string]float64{"player": startingBalance}
	ledger := host.NewMemoryLedger(balances)

	sess := engine.NewSession(engine.Config{
		Catalog:  catalog.Default(),
		Rng:      entropy.NewSeeded(seed),
		Weather:  wx,
		Ledger:   ledger,
		Notifier: host.LogNotifier{},
		Seed:     seed,
	})

	// Ambient farm operations keep the market alive between player actions.
	ambient := newAmbientDriver(sess, seed)
	for id, amount := range ambient.Balances() {
		ledger.Credit(id, amount)
	}

	if db.HasState() {
		slog.Info("found saved session, loading...")
		if err := db.LoadState(sess); err != nil {
			slog.Error("failed to load session", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("no saved session, starting fresh",
			"categories", sess.Catalog.Len(),
			"balance", startingBalance,
		)
	}

	// ── Clock ─────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Hour = sess.Hour
	eng.Speed = 1

	save := func() {
		sess.Locked(func() {
			if err := db.SaveState(sess); err != nil {
				slog.Error("save failed", "error", err)
			}
		})
		if events := sess.DrainEvents(); len(events) > 0 {
			if err := db.AppendEvents(events); err != nil {
				slog.Error("event log append failed", "error", err)
			}
		}
	}

	eng.OnHour = func(hour uint64) {
		sess.OnHourTick(hour)
		ambient.Tick()
		// Auto-save once per sim-day.
		if hour%engine.HoursPerDay == 0 {
			save()
		}
	}
	eng.OnPeriod = sess.OnPeriodTick

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("MARKETSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("MARKETSIM_ADMIN_KEY not set, operation endpoints disabled")
	}

	apiServer := &api.Server{
		Sess:     sess,
		Eng:      eng,
		DB:       db,
		Port:     apiPort,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nMarket open: %d equipment categories.\n", sess.Catalog.Len())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	if sess.Hour > 0 {
		fmt.Printf("Resuming from hour %d (%s)\n", sess.Hour, engine.SimTime(sess.Hour))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	slog.Info("final save...")
	save()
	fmt.Println("Simulation stopped. Session saved.")
}
