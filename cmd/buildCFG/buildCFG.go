package buildCFG

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"hikenity/internal/payment"
	"hikenity/internal/push"
	"hikenity/internal/sweeper"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		log.Warn().Msg("server.port is not set, using 8080")
		port = "8080"
	}
	return ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	host := cfg.GetString("database.host")
	user := cfg.GetString("database.user")
	name := cfg.GetString("database.name")
	if host == "" || user == "" || name == "" {
		return "", nil, nil, fmt.Errorf("database.host, database.user and database.name are required")
	}

	port := cfg.GetInt("database.port")
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.GetString("database.sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	masterDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, cfg.GetString("database.password"), name, sslMode)

	opts := &dbpg.Options{
		MaxOpenConns: cfg.GetInt("database.max_open_conns"),
		MaxIdleConns: cfg.GetInt("database.max_idle_conns"),
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}

	slaves := cfg.GetStringSlice("database.slaves")
	log.Info().
		Str("host", host).
		Int("port", port).
		Str("db", name).
		Int("slaves", len(slaves)).
		Msg("database config loaded")

	return masterDSN, slaves, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (*RabbitConfig, error) {
	rc := &RabbitConfig{
		Url:      cfg.GetString("rabbitmq.url"),
		Exchange: cfg.GetString("rabbitmq.exchange"),
		Queue:    cfg.GetString("rabbitmq.queue"),
	}
	if rc.Url == "" {
		return nil, fmt.Errorf("rabbitmq.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "hikenity.changes"
	}
	if rc.Queue == "" {
		rc.Queue = "hikenity.triggers"
	}

	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbitmq config loaded")
	return rc, nil
}

func BuildPushConfig(cfg *config.Config, log *zerolog.Logger) (push.Config, error) {
	pc := push.Config{
		ProjectID: cfg.GetString("push.project_id"),
		Endpoint:  cfg.GetString("push.endpoint"),
		Timeout:   duration(cfg, log, "push.timeout", 10*time.Second),
	}
	if pc.ProjectID == "" {
		return push.Config{}, fmt.Errorf("push.project_id is required")
	}
	return pc, nil
}

func BuildSweeperConfig(cfg *config.Config, log *zerolog.Logger) sweeper.Config {
	return sweeper.Config{
		Interval: duration(cfg, log, "sweeper.interval", sweeper.DefaultInterval),
		Window:   duration(cfg, log, "sweeper.window", sweeper.DefaultWindow),
	}
}

func BuildStripeConfig(cfg *config.Config, log *zerolog.Logger) (payment.Config, error) {
	sc := payment.Config{
		SecretKey: cfg.GetString("stripe.secret_key"),
		Currency:  cfg.GetString("stripe.currency"),
	}
	if sc.SecretKey == "" {
		sc.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	}
	if sc.SecretKey == "" {
		return payment.Config{}, fmt.Errorf("stripe.secret_key is required")
	}
	log.Info().Str("currency", sc.Currency).Msg("stripe config loaded")
	return sc, nil
}

func duration(cfg *config.Config, log *zerolog.Logger, key string, def time.Duration) time.Duration {
	raw := cfg.GetString(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Dur("default", def).Msg("invalid duration, using default")
		return def
	}
	return d
}
