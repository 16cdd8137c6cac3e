package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/careerpath/internal/apiclient"
	"github.com/careerpath/internal/config"
	"github.com/careerpath/internal/handler"
	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/middleware"
	"github.com/careerpath/internal/push"
	"github.com/careerpath/internal/session"
	"github.com/careerpath/internal/startup"
	"github.com/careerpath/internal/ws"
)

func main() {
	logger.SetPrefix("web")
	dev := flag.Bool("dev", false, "with -store=postgres start embedded PostgreSQL (no external DB required)")
	store := flag.String("store", "", "credential store driver: memory|redis|postgres (overrides config)")
	flag.Parse()

	logger.Info("starting web session service")
	cfg := config.Load()
	if *store != "" {
		cfg.Store.Driver = strings.ToLower(*store)
	}
	logger.SetLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	backend, closeBackend, err := startup.OpenBackend(rootCtx, cfg, *dev)
	if err != nil {
		logger.Errorf("credential store: %v", err)
		os.Exit(1)
	}
	defer closeBackend()

	var keys *push.VAPIDKeys
	if cfg.Push.Enabled {
		keys, err = push.EnsureVAPIDKeys(cfg.Push.VAPIDKeysFile)
		if err != nil {
			logger.Errorf("VAPID: %v — push-уведомления отключены", err)
		}
	}
	notifier := push.NewNotifier(backend, keys, cfg.Push.Subscriber, cfg.Session.LoginPath)

	sessions := session.NewManager(backend,
		session.WithInterval(cfg.Session.CheckInterval),
		session.OnCleared(notifier.SessionCleared),
	)
	api := apiclient.New(cfg.Backend.URL, cfg.Backend.Timeout)
	guard := middleware.NewSessionGuard(sessions, cfg.Session.LoginPath, cfg.Session.StrictGuard)

	hubCtx, hubCancel := context.WithCancel(rootCtx)
	hub := ws.NewHub(sessions, cfg.MaxWSConnections, cfg.Session.LoginPath)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	authH := handler.NewAuthHandler(api, sessions)
	sessionH := handler.NewSessionHandler(sessions)
	langH := handler.NewLanguageHandler(backend)
	pushH := handler.NewPushHandler(notifier)
	pageH := handler.NewPageHandler(api, sessions, cfg.Session.LoginPath)
	configH := handler.NewConfigHandler(cfg, notifier)
	wsH := handler.NewWSHandler(hub, sessions, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compress := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compress.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.ClientScope(cfg.Session.CookieName, cfg.Session.CookieSecure))
	r.Use(middleware.RequestLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/config/push", configH.GetPushConfig)
	r.Get("/api/config/session", configH.GetSessionConfig)

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.RateLimitAuth()).Post("/login", authH.Login)
		r.With(middleware.RateLimitAuth()).Post("/signup", authH.Signup)
		r.Post("/logout", authH.Logout)
	})

	r.Get("/api/session", sessionH.Get)
	r.Get("/api/language", langH.Get)
	r.Put("/api/language", langH.Put)
	r.Post("/api/push/subscribe", pushH.Subscribe)
	r.Delete("/api/push/subscribe", pushH.Unsubscribe)
	r.Get("/ws", wsH.ServeWS)

	// Защищённые страницы и их действия: без токена — 302 на страницу входа.
	r.Group(func(r chi.Router) {
		r.Use(guard.Require)
		for _, p := range handler.ProtectedPages {
			r.Get(p.Path, pageH.Serve(p))
		}
		for _, a := range handler.Actions {
			r.Method(a.Method, "/api"+a.Path, pageH.Action(a))
		}
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s (store=%s, strict_guard=%v)", cfg.ServerAddr, cfg.Store.Driver, cfg.Session.StrictGuard)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped, session timers cancelled")
	notifier.Wait()
	srvWg.Wait()
}
