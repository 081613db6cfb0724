package config

import (
	"os"
	"strings"
)

type Config struct {
	Port string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string

	MQTTBrokerURL string
	IngestEnabled bool

	// DisplayZone is the zone used for best-effort local-time enrichment of
	// broadcast records.
	DisplayZone string

	AllowedOrigins []string
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func Load() Config {
	origins := []string{"*"}
	if raw := env("ALLOWED_ORIGINS", ""); raw != "" {
		origins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return Config{
		Port:           env("TRACKER_PORT", "8080"),
		MongoURI:       env("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        env("MONGO_DB", "test"),
		RedisAddr:      env("REDIS_ADDR", ""),
		RedisPassword:  env("REDIS_PASSWORD", ""),
		MQTTBrokerURL:  env("MQTT_BROKER_URL", ""),
		IngestEnabled:  strings.TrimSpace(strings.ToLower(os.Getenv("TELEMETRY_INGEST"))) != "false",
		DisplayZone:    env("DISPLAY_TIMEZONE", "UTC"),
		AllowedOrigins: origins,
	}
}
