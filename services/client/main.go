package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatsync/internal/api"
	"github.com/chatsync/internal/auth"
	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/storage/memory"
	redisstore "github.com/chatsync/internal/storage/redis"
	"github.com/chatsync/internal/summary"
	"github.com/chatsync/internal/sync"
	"github.com/chatsync/internal/transport"
	"github.com/chatsync/internal/upload"
)

func main() {
	logger.SetPrefix("client")
	dev := flag.Bool("dev", false, "run with the in-memory store (no Redis required)")
	flag.Parse()

	logger.Info("starting sync client")
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}

	store := openStore(cfg, *dev)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("store close: %v", err)
		}
	}()

	credential := resolveCredential(cfg, store)
	claims, err := auth.Inspect(credential)
	if err != nil {
		logger.Errorf("credential: %v", err)
		os.Exit(1)
	}
	logger.Infof("authenticated as user=%s", claims.UserID)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 15*time.Second)
	session, err := transport.Dial(dialCtx, transport.Options{
		URL:            cfg.SocketURL,
		Credential:     credential,
		SendBufferSize: cfg.WSSendBufferSize,
		WriteTimeout:   time.Duration(cfg.WSWriteTimeout) * time.Second,
		PongTimeout:    time.Duration(cfg.WSPongTimeout) * time.Second,
		MaxMessageSize: int64(cfg.WSMaxMessageSize),
	})
	dialCancel()
	if err != nil {
		logger.Errorf("transport: %v", err)
		os.Exit(1)
	}
	defer session.Close()

	restClient := api.NewClient(cfg.ServerURL, credential, cfg.RequestTimeout)
	summaryClient := summary.NewClient(cfg.SummaryURL, credential, 0)
	if summaryClient.Enabled() {
		logger.Info("summary service configured")
	}

	engine := sync.NewEngine(sync.Config{
		LocalUserID: claims.UserID,
		MatchWindow: cfg.OptimisticMatchWindow,
		TypingIdle:  cfg.TypingIdle,
	}, session, restClient, store, upload.NewPipeline(restClient))
	engine.SetErrorHandler(func(err error) {
		logger.Errorf("engine: %v", err)
	})

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = engine.Start(startCtx)
	startCancel()
	if err != nil {
		logger.Errorf("engine start: %v", err)
		os.Exit(1)
	}
	defer engine.Close()
	logger.Infof("directory loaded: %d chats", len(engine.Chats()))

	// Connectivity banner: poll the boolean signal, log edges only.
	stopWatch := make(chan struct{})
	go watchConnectivity(session, stopWatch)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(stopWatch)
	logger.Info("shutting down")
}

func openStore(cfg *config.Config, dev bool) storage.DraftStore {
	if dev || cfg.Redis.URL == "" {
		logger.Info("using in-memory store")
		return memory.New()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := redisstore.New(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Errorf("redis unavailable, falling back to memory store: %v", err)
		return memory.New()
	}
	logger.Info("using redis store")
	return client
}

// resolveCredential prefers the configured token, falling back to the
// last persisted one; a fresh configured token is persisted for next run.
func resolveCredential(cfg *config.Config, store storage.DraftStore) string {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if cfg.Credential != "" {
		if err := store.SetCredential(ctx, cfg.Credential); err != nil {
			logger.Errorf("persist credential: %v", err)
		}
		return cfg.Credential
	}
	token, err := store.GetCredential(ctx)
	if err != nil {
		logger.Errorf("load credential: %v", err)
	}
	return token
}

func watchConnectivity(session *transport.Session, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	last := session.Connected()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := session.Connected()
			if now != last {
				if now {
					logger.Info("connection restored")
				} else {
					logger.Error("connection lost")
				}
				last = now
			}
		}
	}
}
