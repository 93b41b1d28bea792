package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string
	}
	Database struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	JWT struct {
		Secret string
	}
	Log struct {
		Level string
	}
	Match struct {
		PairingGrace     time.Duration
		DisconnectGrace  time.Duration
		HeartbeatTimeout time.Duration
		QueueSize        int
		PlayerTTL        int // seconds a player stays in the pairing pool
	}
	Rating struct {
		KFactor       float64
		DefaultRating int
		Workers       int
		MaxRetries    uint64
		RetryInitial  time.Duration
		RetryMax      time.Duration
	}
}

var C Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("match.pairingGrace", 60*time.Second)
	v.SetDefault("match.disconnectGrace", 30*time.Second)
	v.SetDefault("match.heartbeatTimeout", 45*time.Second)
	v.SetDefault("match.queueSize", 64)
	v.SetDefault("match.playerTTL", 300)
	v.SetDefault("rating.kFactor", 32)
	v.SetDefault("rating.defaultRating", 1200)
	v.SetDefault("rating.workers", 4)
	v.SetDefault("rating.maxRetries", 5)
	v.SetDefault("rating.retryInitial", 200*time.Millisecond)
	v.SetDefault("rating.retryMax", 10*time.Second)
}

// LoadFile reads the YAML file at path into C. Environment variables prefixed
// with SCOREBOARD_ override file values (SCOREBOARD_JWT_SECRET, ...).
func LoadFile(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("scoreboard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	C = c
	return nil
}

func Load() {
	if err := LoadFile("config/config.yaml"); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}
