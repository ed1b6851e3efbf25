package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Identity  IdentityConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
	CORSOrigins    []string      `mapstructure:"corsOrigins"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwtSecret"`
	TokenTTL      time.Duration `mapstructure:"tokenTTL"`
	AdminUsername string        `mapstructure:"adminUsername"`
	AdminPassword string        `mapstructure:"adminPassword"`
	// HashPepper keys the HMAC over stored key hashes. Changing it
	// invalidates every issued key.
	HashPepper string `mapstructure:"hashPepper"`
}

type IdentityConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Required makes verification fail with IdentityUnverifiable when
	// the provider cannot confirm the subject. When false the provider
	// is advisory and its failures only log.
	Required bool `mapstructure:"required"`
}

type BucketConfig struct {
	Capacity int           `mapstructure:"capacity"`
	Window   time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	// UseRedis switches the limiter from per-process token buckets to
	// the shared fixed-window store.
	UseRedis bool         `mapstructure:"useRedis"`
	PerKey   BucketConfig `mapstructure:"perKey"`
	PerOrg   BucketConfig `mapstructure:"perOrg"`
	Creation BucketConfig `mapstructure:"creation"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.readTimeout", 5*time.Second)
	viper.SetDefault("server.writeTimeout", 10*time.Second)
	viper.SetDefault("server.idleTimeout", 120*time.Second)
	viper.SetDefault("server.shutdownPeriod", 15*time.Second)
	viper.SetDefault("server.corsOrigins", []string{"http://localhost:3000"})

	viper.SetDefault("database.maxOpenConns", 25)
	viper.SetDefault("database.maxIdleConns", 25)
	viper.SetDefault("database.connMaxLifetime", 5*time.Minute)

	viper.SetDefault("redis.db", "0")

	viper.SetDefault("auth.tokenTTL", 1*time.Hour)
	viper.SetDefault("auth.adminUsername", "admin")

	viper.SetDefault("identity.timeout", 2*time.Second)
	viper.SetDefault("identity.required", false)

	viper.SetDefault("ratelimit.useRedis", true)
	viper.SetDefault("ratelimit.perKey.capacity", 1000)
	viper.SetDefault("ratelimit.perKey.window", time.Minute)
	viper.SetDefault("ratelimit.perOrg.capacity", 5000)
	viper.SetDefault("ratelimit.perOrg.window", time.Minute)
	viper.SetDefault("ratelimit.creation.capacity", 10)
	viper.SetDefault("ratelimit.creation.window", time.Hour)

	viper.SetDefault("log.level", "info")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AllowEmptyEnv(true)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
