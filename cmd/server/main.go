package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/bulkmailer/internal/api"
	"github.com/ignite/bulkmailer/internal/config"
	"github.com/ignite/bulkmailer/internal/delivery"
	"github.com/ignite/bulkmailer/internal/pkg/logger"
	"github.com/ignite/bulkmailer/internal/pkg/runlock"
	"github.com/ignite/bulkmailer/internal/repository/postgres"
	"github.com/ignite/bulkmailer/internal/service/dispatch"
	tmpl "github.com/ignite/bulkmailer/internal/template"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	configureLogging(cfg.Logging)

	if cfg.Database.URL == "" {
		log.Fatal("database.url is required (or set DATABASE_URL)")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	pingCancel()
	log.Println("Database connected")

	locks := buildLocker(cfg.Redis)
	deliverer := buildDeliverer(cfg)

	svc := dispatch.NewService(postgres.NewCampaignRepo(db), deliverer, locks)
	server := api.NewServer(api.NewHandlers(svc, tmpl.NewService()))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Let in-flight send runs write their remaining recipient outcomes.
	svc.Wait()
	log.Println("Server stopped")
}

func configureLogging(cfg config.LoggingConfig) {
	switch cfg.Level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}
	if cfg.RedactPII != nil {
		logger.SetRedactPII(*cfg.RedactPII)
	}
}

// buildLocker returns a Redis-backed run lock when Redis is configured,
// otherwise the in-process registry.
func buildLocker(cfg config.RedisConfig) runlock.Locker {
	if cfg.Addr == "" {
		log.Println("Redis not configured, using in-process run locks")
		return runlock.NewMemory()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed (%s): %v, using in-process run locks", cfg.Addr, err)
		client.Close()
		return runlock.NewMemory()
	}
	log.Printf("Redis connected: %s (shared run locks enabled)", cfg.Addr)
	return runlock.NewRedis(client, 30*time.Minute)
}

// buildDeliverer selects the outbound provider from configuration.
func buildDeliverer(cfg *config.Config) dispatch.Deliverer {
	switch cfg.Delivery.Provider {
	case "sparkpost":
		log.Println("Delivery provider: SparkPost")
		return delivery.NewSparkPost(cfg.SparkPost.APIKey, cfg.Delivery.FromName, cfg.Delivery.FromEmail)
	case "ses":
		d, err := delivery.NewSES(context.Background(),
			cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region,
			cfg.Delivery.FromName, cfg.Delivery.FromEmail)
		if err != nil {
			log.Fatalf("Failed to initialize SES: %v", err)
		}
		log.Println("Delivery provider: AWS SES")
		return d
	default:
		log.Println("Delivery provider: log only (no emails will be sent)")
		return delivery.NewLog()
	}
}
