package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
	"github.com/ahinestrog/fubooks-storefront/internal/catalog"
	"github.com/ahinestrog/fubooks-storefront/internal/checkout"
	"github.com/ahinestrog/fubooks-storefront/internal/config"
	"github.com/ahinestrog/fubooks-storefront/internal/events"
	"github.com/ahinestrog/fubooks-storefront/internal/session"
	"github.com/ahinestrog/fubooks-storefront/internal/web"
)

const shutdownGrace = 10 * time.Second

func main() {
	// Logger
	zerolog.TimeFieldFormat = time.RFC3339

	cfg, err := config.Load()
	must(err)
	if cfg.Dev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Str("api", cfg.APIURL).
		Str("db", cfg.DBPath).
		Msg("starting storefront")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Carritos
	var repo cart.Repository
	if cfg.DBPath == "" {
		repo = cart.NewMemoryRepo()
		log.Warn().Msg("no db path, carts live in memory only")
	} else {
		must(os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))
		db, err := cart.OpenSQLite(ctx, cfg.DBPath)
		must(err)
		defer db.Close()
		repo = cart.NewSQLiteRepo(db)
	}

	// Rabbit
	rabbit, err := events.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
	must(err)
	defer rabbit.Close()
	if rabbit == nil {
		log.Info().Msg("rabbit disabled")
	}
	var pub events.Publisher
	if rabbit != nil {
		pub = rabbit
	}

	api := catalog.NewClient(cfg.APIURL, cfg.APITimeout, log.Logger)
	books := catalog.NewBookCache(api, cfg.BookCacheSize, cfg.BookCacheTTL)

	opts := []session.Option{session.WithLogger(log.Logger)}
	if pub != nil {
		opts = append(opts, session.OnOpen(func(s *session.Session) {
			s.Cart.Subscribe(events.CartObserver(pub, s.ID, log.Logger))
		}))
	}
	sessions, err := session.NewManager(repo, cfg.SessionCapacity, opts...)
	must(err)

	orders := checkout.NewService(api, checkout.Options{
		DeliveryFee:   cfg.DeliveryFee,
		PickupStation: cfg.PickupStation,
		Publisher:     pub,
		Log:           log.Logger,
	})

	srv := web.New(web.Deps{
		Sessions:     sessions,
		Books:        books,
		API:          api,
		Checkout:     orders,
		Log:          log.Logger,
		CORSOrigins:  cfg.CORSOrigins,
		SecureCookie: !cfg.Dev(),
		TrustProxy:   cfg.TrustProxy,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpSrv.RegisterOnShutdown(srv.Close)

	// gRPC: health + reflection para probes del cluster
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	must(err)
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	reflection.Register(grpcSrv)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		log.Info().Msg("gRPC listening")
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve")
		}
	}()

	// Señales para apagado limpio
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Warn().Msg("shutting down...")
		hs.Shutdown()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer scancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		grpcSrv.GracefulStop()
		cancel()
	}()

	log.Info().Msg("HTTP listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		must(err)
	}
	<-ctx.Done()
	sessions.Close()
	log.Info().Msg("bye")
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
