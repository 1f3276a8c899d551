package main

import (
	"log"
	"os"
	"time"

	"spacechat/internal/api"
	"spacechat/internal/auth"
	"spacechat/internal/config"
	"spacechat/internal/redis"
	"spacechat/internal/service/workspace"
	"spacechat/internal/storage"
	"spacechat/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("SPACECHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("SPACECHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	workspaceService := workspace.NewService(db)
	workerCfg := worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	}
	manager := worker.NewManager(workspaceService, cfg.Upstream, rdb, workerCfg)
	authService := auth.NewService(db, rdb, 24*time.Hour)

	syncInterval := time.Duration(cfg.BasicConfig.ModelSyncInterval) * time.Minute
	if syncInterval <= 0 {
		syncInterval = 6 * time.Hour
	}
	go runModelSync(manager, syncInterval)

	handlers := api.NewHandler(workspaceService, authService, manager, rdb)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// runModelSync keeps the local model catalog warm, once at boot then on a
// fixed interval.
func runModelSync(manager *worker.Manager, interval time.Duration) {
	if err := manager.ScheduleModelSync(); err != nil {
		log.Printf("schedule model sync: %v", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := manager.ScheduleModelSync(); err != nil {
			log.Printf("schedule model sync: %v", err)
		}
	}
}
