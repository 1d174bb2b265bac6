/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcore/internal/audit"
	"github.com/friendsincode/signalcore/internal/auth"
	"github.com/friendsincode/signalcore/internal/callback"
	"github.com/friendsincode/signalcore/internal/config"
	"github.com/friendsincode/signalcore/internal/controlapi"
	"github.com/friendsincode/signalcore/internal/db"
	"github.com/friendsincode/signalcore/internal/eventbus"
	"github.com/friendsincode/signalcore/internal/events"
	"github.com/friendsincode/signalcore/internal/models"
	"github.com/friendsincode/signalcore/internal/room"
	"github.com/friendsincode/signalcore/internal/rpcconn"
	"github.com/friendsincode/signalcore/internal/telemetry"
	"github.com/friendsincode/signalcore/internal/trafficwatcher"
	"github.com/friendsincode/signalcore/internal/turnauth"
)

// Server bundles the HTTP/WS/gRPC surfaces and the room-registry runtime
// behind them.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	grpcServer *grpc.Server
	closers    []func() error

	db       *gorm.DB
	bus      *events.Bus
	pubsub   events.PubSub
	natsBus  *eventbus.NATSBus
	rooms    *room.Registry
	turn     *turnauth.Service
	watcher  *trafficwatcher.Watcher
	callback *callback.Service
	audit    *audit.Service
	rpc      *rpcconn.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires every dependency.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.TracingMiddleware("signalcore-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip the request timeout for the RPC WebSocket upgrade: those
	// connections are meant to stay open for the lifetime of a member's
	// session, not a single request/response cycle.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" || strings.HasPrefix(r.URL.Path, "/ws/") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:        addr,
		Handler:     srv.router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout left at 0: the RPC WebSocket holds connections open
		// for as long as a member stays joined.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	pubsub := events.PubSub(s.bus)
	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsBus, err := eventbus.NewNATSBus(natsCfg, s.cfg.InstanceID, s.logger)
		if err != nil {
			return fmt.Errorf("connect nats event bus: %w", err)
		}
		s.natsBus = natsBus
		s.DeferClose(func() error { return natsBus.Close() })
		pubsub = natsBus
	}
	s.pubsub = pubsub

	var redisClient *redis.Client
	if s.cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		s.DeferClose(func() error { return redisClient.Close() })
	}

	s.turn = turnauth.New(turnauth.Config{
		Host:   s.cfg.TurnHost,
		Port:   s.cfg.TurnPort,
		Secret: s.cfg.TurnSecret,
		TTL:    s.cfg.TurnCredentialTTL,
		Static: []turnauth.StaticServer{
			{URLs: []string{fmt.Sprintf("turn:%s:%d", s.cfg.TurnHost, s.cfg.TurnPort)}, User: s.cfg.TurnStaticUsername, Pass: s.cfg.TurnStaticCredential},
		},
	}, redisClient, s.logger)
	s.DeferClose(func() error { s.turn.Close(); return nil })

	s.watcher = trafficwatcher.New(context.Background(), s.logger)
	s.DeferClose(func() error { s.watcher.Close(); return nil })

	s.audit = audit.NewService(database, pubsub, s.logger)

	s.callback = callback.NewService(database, &callbackTargetResolver{db: database}, s.logger, telemetry.RecordCallbackDelivery)

	s.rooms = room.NewRegistry(s.turn, s.watcher, s.callback, s.audit, s.logger)
	s.DeferClose(func() error { s.rooms.CloseAll(); return nil })

	s.rpc = rpcconn.NewServer(s.rooms, s.logger)

	s.grpcServer = grpc.NewServer()
	controlapi.Register(s.grpcServer, controlapi.NewServer(&registryAdapter{reg: s.rooms, bus: pubsub}))

	return nil
}

// registryAdapter narrows room.Registry to controlapi.Rooms and publishes
// the room-lifecycle events the audit service's bus subscriber listens
// for, since a Registry mutation happens outside any single Room's
// mailbox.
type registryAdapter struct {
	reg *room.Registry
	bus events.PubSub
}

func (a *registryAdapter) GetOrCreate(id string) *room.Room {
	_, existed := a.reg.Get(id)
	rm := a.reg.GetOrCreate(id)
	if !existed {
		a.bus.Publish(events.EventRoomCreated, events.Payload{"room_id": id})
	}
	return rm
}

func (a *registryAdapter) Delete(id string) {
	a.reg.Delete(id)
	a.bus.Publish(events.EventRoomClosed, events.Payload{"room_id": id})
}

// callbackTargetResolver loads configured callback targets for a room from
// the database.
type callbackTargetResolver struct {
	db *gorm.DB
}

func (r *callbackTargetResolver) ResolveTargets(roomID string, kind models.CallbackKind) []models.CallbackTarget {
	var targets []models.CallbackTarget
	if r.db == nil {
		return nil
	}
	r.db.Where("room_id = ? AND kind = ? AND active = ?", roomID, kind, true).Find(&targets)
	return targets
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// GRPCServer exposes the underlying gRPC server.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Close releases owned resources in reverse registration order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook run (in reverse order) on Close.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.audit.Start(ctx)
	}()

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	authMiddleware := auth.Middleware([]byte(s.cfg.JWTSigningKey))
	s.router.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		controlapi.NewHandler(&registryAdapter{reg: s.rooms, bus: s.pubsub}).Routes(r)
	})

	s.router.Handle("/ws/rpc", s.rpc)
}
