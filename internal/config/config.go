package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Reader    ReaderConfig    `mapstructure:"reader"`
	Codec     CodecConfig     `mapstructure:"codec"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ReaderConfig struct {
	Name          string        `mapstructure:"name"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type CodecConfig struct {
	IncludeRawOIDs bool `mapstructure:"include_raw_oids"`
}

type WebSocketConfig struct {
	SendBuffer int `mapstructure:"send_buffer"`
}

// Load reads configs/config.yaml (or path, when set), then applies
// environment overrides such as SERVER_PORT or READER_NAME.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("reader.name", "")
	v.SetDefault("reader.poll_interval", 500*time.Millisecond)
	v.SetDefault("reader.retry_interval", 2*time.Second)
	v.SetDefault("codec.include_raw_oids", false)
	v.SetDefault("websocket.send_buffer", 256)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
