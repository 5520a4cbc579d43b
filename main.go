package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"prism-todo/api"
	"prism-todo/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	var store api.Store
	driver := envOr("STORAGE_DRIVER", "azure")
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	switch driver {
	case "azure":
		if connStr == "" {
			log.Fatal("missing storage config")
		}
		s, err := storage.New(connStr, envOr("TODOS_TABLE", "todos"))
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = s
	case "sqlite":
		s, err := storage.OpenSQLite(envOr("SQLITE_PATH", "todos.db"))
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		defer s.Close()
		store = s
	default:
		log.Fatalf("invalid STORAGE_DRIVER: %q", driver)
	}

	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		ttl := 5 * time.Minute
		if v := os.Getenv("CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid CACHE_TTL: %q", v)
			}
			ttl = d
		}
		rc := redis.NewClient(redisOptions(redisConn))
		defer rc.Close()
		store = storage.NewCache(store, rc, ttl)
		log.Infof("todo cache enabled, ttl: %v", ttl)
	}

	var publisher api.EventPublisher
	if queueName := os.Getenv("EVENTS_QUEUE"); queueName != "" {
		if connStr == "" {
			log.Fatal("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		q, err := storage.NewEventQueue(connStr, queueName)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		publisher = q
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(log.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}).Debug("request")
			return nil
		},
	}))
	e.Use(api.GzipRequestMiddleware(), api.MaxBodyMiddleware())

	a := api.Register(e, store, publisher, logger)

	listenAddr := ":" + envOr("PORT", "5000")
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()
	log.Infof("todo api listening on %s (driver: %s)", listenAddr, driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Errorf("event publisher shutdown: %v", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorf("tracer shutdown: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// redisOptions accepts a redis:// URL or an Azure-style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
