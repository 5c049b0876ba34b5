package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"deepchat/internal/api"
	"deepchat/internal/auth"
	"deepchat/internal/chat"
	"deepchat/internal/chatclient"
	"deepchat/internal/config"
	"deepchat/internal/redis"
	"deepchat/internal/relay"
	"deepchat/internal/storage"
	"deepchat/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("DEEPCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("DEEPCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	// Create necessary tables: users, chats, messages, prompts, api_configs
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	storeService := store.NewService(db)
	authService := auth.NewService(db, rdb, 24*time.Hour)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	relayClient := chatclient.NewClient(loopbackBase(addr), nil)
	manager := chat.NewManager(storeService, relayClient)

	router := gin.Default()
	relay.NewHandler(cfg).RegisterRoutes(router)
	api.NewHandler(storeService, authService, manager).RegisterRoutes(router)

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// loopbackBase turns a listen address into the base URL the turn
// orchestrator uses to reach the relay on the same process.
func loopbackBase(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://127.0.0.1:8090"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
}
