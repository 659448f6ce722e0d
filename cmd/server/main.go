package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/groovesync/server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 4000,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	mediaAPIBaseURL = configVar[string]{
		envKey:       "MEDIA_API_BASE_URL",
		flagKey:      "media-api-base-url",
		defaultValue: "https://api.soundcloud.com",
	}
	mediaTokenURL = configVar[string]{
		envKey:       "MEDIA_TOKEN_URL",
		flagKey:      "media-token-url",
		defaultValue: "https://secure.soundcloud.com/oauth/token",
	}
	mediaClientID = configVar[string]{
		envKey:       "MEDIA_CLIENT_ID",
		flagKey:      "media-client-id",
		defaultValue: "",
	}
	mediaClientSecret = configVar[string]{
		envKey:       "MEDIA_CLIENT_SECRET",
		flagKey:      "media-client-secret",
		defaultValue: "",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(mediaAPIBaseURL.flagKey, mediaAPIBaseURL.defaultValue, "Upstream media API base URL")
	pflag.String(mediaTokenURL.flagKey, mediaTokenURL.defaultValue, "Upstream OAuth token URL")
	pflag.String(mediaClientID.flagKey, mediaClientID.defaultValue, "Media API client id")
	pflag.String(mediaClientSecret.flagKey, mediaClientSecret.defaultValue, "Media API client secret")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host for the broadcast bus (empty disables it)")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(mediaAPIBaseURL.flagKey, mediaAPIBaseURL.envKey)
	viper.BindEnv(mediaTokenURL.flagKey, mediaTokenURL.envKey)
	viper.BindEnv(mediaClientID.flagKey, mediaClientID.envKey)
	viper.BindEnv(mediaClientSecret.flagKey, mediaClientSecret.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)

	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(mediaAPIBaseURL.flagKey, mediaAPIBaseURL.defaultValue)
	viper.SetDefault(mediaTokenURL.flagKey, mediaTokenURL.defaultValue)
	viper.SetDefault(mediaClientID.flagKey, mediaClientID.defaultValue)
	viper.SetDefault(mediaClientSecret.flagKey, mediaClientSecret.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)

	return &app.AppConfig{
		Host:              viper.GetString(host.flagKey),
		Port:              viper.GetInt(port.flagKey),
		LogLevel:          viper.GetString(logLevel.flagKey),
		MediaAPIBaseURL:   viper.GetString(mediaAPIBaseURL.flagKey),
		MediaTokenURL:     viper.GetString(mediaTokenURL.flagKey),
		MediaClientID:     viper.GetString(mediaClientID.flagKey),
		MediaClientSecret: viper.GetString(mediaClientSecret.flagKey),
		RedisHost:         viper.GetString(redisHost.flagKey),
		RedisPort:         viper.GetInt(redisPort.flagKey),
		RedisPassword:     viper.GetString(redisPassword.flagKey),
	}
}

func main() {
	godotenv.Load()

	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
