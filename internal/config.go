package internal

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config 服務設定
//
// 來源優先順序：命令列參數 > 環境變數 > dotenv 檔案 > 預設值。
type Config struct {
	Port      int    `env:"POKER_PORT"       envDefault:"8080"`
	LogLevel  string `env:"POKER_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"POKER_LOG_FORMAT" envDefault:"text"`

	AllowedOrigins []string `env:"POKER_ALLOWED_ORIGINS" envSeparator:","`

	DefaultRoom     string        `env:"POKER_DEFAULT_ROOM"      envDefault:"global-room"`
	AdminSuffix     string        `env:"POKER_ADMIN_SUFFIX"      envDefault:"_admin"`
	Deck            []string      `env:"POKER_DECK"              envDefault:"1,3,5,8,13,?" envSeparator:","`
	BroadcastDelay  time.Duration `env:"POKER_BROADCAST_DELAY"   envDefault:"50ms"`
	ReactionHistory int           `env:"POKER_REACTION_HISTORY"  envDefault:"20"`
	MaxChatLength   int           `env:"POKER_MAX_CHAT_LENGTH"   envDefault:"500"`
	RoomIdleTimeout time.Duration `env:"POKER_ROOM_IDLE_TIMEOUT" envDefault:"30m"`

	MirrorDriver string        `env:"POKER_MIRROR_DRIVER" envDefault:"none"`
	MirrorDSN    string        `env:"POKER_MIRROR_DSN"`
	MirrorTTL    time.Duration `env:"POKER_MIRROR_TTL"    envDefault:"24h"`
}

// LoadConfig 讀取 dotenv 檔案與環境變數
//
// envFile 為空時嘗試目前目錄的 .env；指定的檔案讀不到時同樣退回 .env。
// 兩者都不存在不算錯誤，直接使用環境變數與預設值。
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	} else {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize 去除清單項目的空白與空項目
func (c *Config) normalize() {
	c.Deck = trimList(c.Deck)
	c.AllowedOrigins = trimList(c.AllowedOrigins)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.MirrorDriver = strings.ToLower(strings.TrimSpace(c.MirrorDriver))
}

// Validate 檢查設定
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if !roomIDPattern.MatchString(c.DefaultRoom) {
		return fmt.Errorf("invalid default room id: %q", c.DefaultRoom)
	}
	if c.BroadcastDelay < 0 {
		return fmt.Errorf("broadcast delay must not be negative: %s", c.BroadcastDelay)
	}
	if c.ReactionHistory < 0 {
		return fmt.Errorf("reaction history must not be negative: %d", c.ReactionHistory)
	}
	if c.MaxChatLength < 0 {
		return fmt.Errorf("max chat length must not be negative: %d", c.MaxChatLength)
	}
	if !slices.Contains([]string{"none", "memory", "redis", "sqlite"}, c.MirrorDriver) {
		return fmt.Errorf("unknown mirror driver: %q", c.MirrorDriver)
	}
	if (c.MirrorDriver == "redis" || c.MirrorDriver == "sqlite") && c.MirrorDSN == "" {
		return fmt.Errorf("mirror driver %s requires POKER_MIRROR_DSN", c.MirrorDriver)
	}
	return nil
}

// Override 套用命令列參數並重新檢查
//
// 零值代表未指定。
func (c *Config) Override(port int, logLevel, logFormat string) error {
	if port != 0 {
		c.Port = port
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if logFormat != "" {
		c.LogFormat = logFormat
	}
	c.normalize()
	return c.Validate()
}

// ManagerConfig 轉成房間管理器設定
func (c Config) ManagerConfig() ManagerConfig {
	mc := DefaultManagerConfig()
	mc.DefaultRoomID = c.DefaultRoom
	mc.Room = RoomOptions{
		AdminSuffix:     c.AdminSuffix,
		Deck:            slices.Clone(c.Deck),
		ReactionHistory: c.ReactionHistory,
	}
	mc.BroadcastDelay = c.BroadcastDelay
	mc.MaxChatLength = c.MaxChatLength
	mc.RoomIdleTimeout = c.RoomIdleTimeout
	return mc
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
