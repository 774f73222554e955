package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"simpellab-backend/internal/inventory/borrowers"
	"simpellab-backend/internal/inventory/borrowings"
	"simpellab-backend/internal/inventory/damages"
	"simpellab-backend/internal/inventory/items"
	"simpellab-backend/internal/inventory/opnames"
	"simpellab-backend/internal/inventory/transactions"
	"simpellab-backend/internal/platform/audit"
	"simpellab-backend/internal/platform/auth"
	"simpellab-backend/internal/platform/db"
	"simpellab-backend/internal/platform/notify"
)

func main() {
	// .env is optional; real deployments set the variables directly.
	_ = godotenv.Load()

	secret := []byte(os.Getenv("JWT_SECRET"))
	if len(secret) == 0 {
		log.Fatal("[FATAL] JWT_SECRET is not set")
	}

	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)
	if mode != "dev" && mode != "release" {
		log.Fatal("[FATAL] mode must be dev or release")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	authSvc := auth.NewService(conn, secret)
	auditSvc := audit.NewService(conn)
	notifySvc := notify.NewService(conn, authSvc.Store())

	itemSvc := items.NewService(conn, auditSvc)
	itemStore := itemSvc.Store()

	borrowerSvc := borrowers.NewService(conn, auditSvc)
	borrowerStore := borrowerSvc.Store()

	damageStore := damages.NewStore(conn)
	borrowingSvc := borrowings.NewService(conn, itemStore, borrowerStore, damageStore,
		notifySvc, auditSvc, cfg.Stock.LowThreshold)
	damageSvc := damages.NewService(conn, damageStore, itemStore, borrowings.NewStore(conn),
		notifySvc, auditSvc, cfg.Stock.LowThreshold)
	transactionSvc := transactions.NewService(conn, itemStore, notifySvc, auditSvc, cfg.Stock.LowThreshold)
	opnameSvc := opnames.NewService(conn, itemStore, notifySvc, auditSvc)

	// Login is the only route outside the auth wall.
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, authSvc)

	protected := r.Group("/api/v1")
	protected.Use(auth.RequireAuth(secret))
	items.RegisterRoutes(protected, itemSvc)
	borrowers.RegisterRoutes(protected, borrowerSvc)
	borrowings.RegisterRoutes(protected, borrowingSvc)
	damages.RegisterRoutes(protected, damageSvc)
	transactions.RegisterRoutes(protected, transactionSvc)
	opnames.RegisterRoutes(protected, opnameSvc)
	notify.RegisterRoutes(protected, notify.NewStore(conn))
	audit.RegisterRoutes(protected, audit.NewStore(conn))

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	borrowings.StartSweeper(sweepCtx, borrowingSvc, time.Duration(cfg.Sweep.IntervalMinutes)*time.Minute)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
