package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chatsync/internal/logger"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// loadEnv reads .env only outside production (deployed clients get config
// from the environment alone). Walks up to five parent directories.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		idx := strings.LastIndex(parent, "/")
		if idx <= 0 {
			return
		}
		dir = parent[:idx]
		if dir == "" {
			dir = "/"
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// RedisConfig configures the optional draft/session store. Empty URL
// selects the in-memory store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Config holds client settings. Priority: env > YAML file > defaults.
type Config struct {
	// ServerURL is the REST collaborator base, e.g. https://api.example.com.
	ServerURL string `yaml:"server_url" validate:"required,url"`
	// SocketURL is the websocket endpoint; derived from ServerURL when empty.
	SocketURL string `yaml:"socket_url" validate:"omitempty,url"`
	// SummaryURL is the summarization service base. Empty disables summaries.
	SummaryURL string `yaml:"summary_url" validate:"omitempty,url"`

	// Credential is the bearer session token issued by the auth service.
	Credential string `yaml:"-"`

	RequestTimeout time.Duration `yaml:"-"`

	// WebSocket tuning.
	WSSendBufferSize int `yaml:"ws_send_buffer_size" validate:"min=1"`
	WSWriteTimeout   int `yaml:"ws_write_timeout" validate:"min=1"`
	WSPongTimeout    int `yaml:"ws_pong_timeout" validate:"min=1"`
	WSMaxMessageSize int `yaml:"ws_max_message_size" validate:"min=256"`

	// OptimisticMatchWindow bounds placeholder-to-echo matching. A
	// heuristic, not a correctness boundary; tune freely.
	OptimisticMatchWindow time.Duration `yaml:"-"`

	// TypingIdle is the quiet period after which typing:stop is emitted.
	TypingIdle time.Duration `yaml:"-"`

	Redis RedisConfig `yaml:"-"`

	LogLevel string `yaml:"log_level"`
}

type yamlConfig struct {
	ServerURL               string `yaml:"server_url"`
	SocketURL               string `yaml:"socket_url"`
	SummaryURL              string `yaml:"summary_url"`
	RequestTimeoutSec       int    `yaml:"request_timeout"`
	WSSendBufferSize        int    `yaml:"ws_send_buffer_size"`
	WSWriteTimeout          int    `yaml:"ws_write_timeout"`
	WSPongTimeout           int    `yaml:"ws_pong_timeout"`
	WSMaxMessageSize        int    `yaml:"ws_max_message_size"`
	OptimisticMatchWindowMS int    `yaml:"optimistic_match_window_ms"`
	TypingIdleMS            int    `yaml:"typing_idle_ms"`
	LogLevel                string `yaml:"log_level"`
}

// Load reads .env (if any), then the YAML file, then the environment
// (highest priority), validates the result and returns it.
func Load() (*Config, error) {
	loadEnv()
	yc := yamlConfig{
		ServerURL:               "http://localhost:8080",
		RequestTimeoutSec:       10,
		WSSendBufferSize:        256,
		WSWriteTimeout:          10,
		WSPongTimeout:           60,
		WSMaxMessageSize:        65536,
		OptimisticMatchWindowMS: 5000,
		TypingIdleMS:            3000,
		LogLevel:                "info",
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (using defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	cfg := &Config{
		ServerURL:             strings.TrimSuffix(envStr("SERVER_URL", yc.ServerURL), "/"),
		SocketURL:             envStr("SOCKET_URL", yc.SocketURL),
		SummaryURL:            envStr("SUMMARY_URL", yc.SummaryURL),
		Credential:            envStr("CHAT_CREDENTIAL", ""),
		RequestTimeout:        time.Duration(envInt("REQUEST_TIMEOUT", yc.RequestTimeoutSec)) * time.Second,
		WSSendBufferSize:      envInt("WS_SEND_BUFFER_SIZE", yc.WSSendBufferSize),
		WSWriteTimeout:        envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeout),
		WSPongTimeout:         envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout),
		WSMaxMessageSize:      envInt("WS_MAX_MESSAGE_SIZE", yc.WSMaxMessageSize),
		OptimisticMatchWindow: time.Duration(envInt("OPTIMISTIC_MATCH_WINDOW_MS", yc.OptimisticMatchWindowMS)) * time.Millisecond,
		TypingIdle:            time.Duration(envInt("TYPING_IDLE_MS", yc.TypingIdleMS)) * time.Millisecond,
		Redis:                 RedisConfig{URL: envStr("REDIS_URL", "")},
		LogLevel:              envStr("LOG_LEVEL", yc.LogLevel),
	}
	if cfg.SocketURL == "" {
		cfg.SocketURL = deriveSocketURL(cfg.ServerURL)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// deriveSocketURL maps an http(s) base to its ws(s) endpoint.
func deriveSocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://") + "/ws"
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://") + "/ws"
	default:
		return serverURL + "/ws"
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
