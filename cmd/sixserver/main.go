package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/fiveserver/fiveserver/internal/admin"
	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/crypto"
	"github.com/fiveserver/fiveserver/internal/db"
	"github.com/fiveserver/fiveserver/internal/metrics"
	"github.com/fiveserver/fiveserver/internal/service"
	"github.com/fiveserver/fiveserver/internal/session"
	"github.com/fiveserver/fiveserver/internal/tasks"
	"github.com/fiveserver/fiveserver/internal/web"
)

const configPath = "etc/sixserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("sixserver starting", "version", config.Version)

	cfgPath := configPath
	if p := os.Getenv("FS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadSix(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Debug {
		level.Set(slog.LevelDebug)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.DB.URL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	users := db.NewUserRepository(database.Pool())
	profiles := db.NewProfileRepository(database.Pool())
	matches := db.NewMatch6Repository(database.Pool())

	cipher, err := crypto.NewAuthCipher(cfg.CipherKey)
	if err != nil {
		return fmt.Errorf("loading cipher key: %w", err)
	}
	banned, err := config.LoadBannedList(cfg.BannedList)
	if err != nil {
		return fmt.Errorf("loading banned list: %w", err)
	}

	world := service.NewWorld(&cfg, users, profiles, matches, cipher, banned)
	world.SetLogLevelVar(level)
	services := service.NewSixServices(world)

	opts := []session.Option{
		session.WithAdmission(func(ip string) bool {
			return !banned.IsBanned(ip)
		}),
	}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m := metrics.New()
		world.SetRecorder(m)
		m.ObserveWorld(func() (int, []metrics.LobbyCount) {
			return sampleWorld(world)
		})
		opts = append(opts, session.WithMonitor(m))
		metricsHandler = m.Handler()
	}

	g, gctx := errgroup.WithContext(ctx)

	listen := func(role string, port int, d session.Handler) {
		srv := session.NewServer(role, fmt.Sprintf("%s:%d", cfg.ListenOn, port), d, opts...)
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				return fmt.Errorf("%s service: %w", role, err)
			}
			return nil
		})
	}

	news := services.News()
	for _, port := range cfg.GamePorts {
		listen("news", port, news)
	}
	for build, port := range cfg.NetworkServer.LoginService {
		listen("login", port, services.Login(build))
	}
	listen("netmenu", cfg.NetworkServer.NetworkMenuService, services.NetworkMenu())
	listen("main", cfg.NetworkServer.MainService, services.Main())

	probe := tasks.NewAddressProbe(world)

	adminSvc := admin.New(world, users, profiles, matches, probe, metricsHandler)
	g.Go(func() error {
		if err := adminSvc.Run(gctx, fmt.Sprintf("%s:%d", cfg.ListenOn, cfg.Admin.Port)); err != nil {
			return fmt.Errorf("admin service: %w", err)
		}
		return nil
	})
	if cfg.Admin.StatsPort > 0 {
		statsSvc := admin.NewStats(world, users, profiles, matches)
		g.Go(func() error {
			if err := statsSvc.Run(gctx, fmt.Sprintf("%s:%d", cfg.ListenOn, cfg.Admin.StatsPort)); err != nil {
				return fmt.Errorf("stats service: %w", err)
			}
			return nil
		})
	}

	webSvc, err := web.New(world)
	if err != nil {
		return fmt.Errorf("creating registration service: %w", err)
	}
	g.Go(func() error {
		if err := webSvc.Run(gctx, fmt.Sprintf("%s:%d", cfg.ListenOn, cfg.Web.Port)); err != nil {
			return fmt.Errorf("registration service: %w", err)
		}
		return nil
	})

	g.Go(func() error { return probe.Run(gctx) })
	g.Go(func() error { return tasks.NewDayChange(services).Run(gctx) })
	g.Go(func() error {
		return tasks.NewRankCompute(profiles, cfg.ComputeRanksInterval.Duration()).Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// sampleWorld reads the population gauges under the world lock. It
// runs on every metrics scrape.
func sampleWorld(world *service.World) (int, []metrics.LobbyCount) {
	world.Lock()
	defer world.Unlock()
	online := world.NumUsersOnline()
	lobbies := make([]metrics.LobbyCount, 0, len(world.Lobbies()))
	for _, l := range world.Lobbies() {
		lobbies = append(lobbies, metrics.LobbyCount{
			Name:    l.Name,
			Players: len(l.Players),
			Rooms:   len(l.Rooms),
		})
	}
	return online, lobbies
}
