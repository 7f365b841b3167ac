package config

import (
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Postgres struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
	SSLMode  string
}

type Kafka struct {
	Brokers       []string
	StatusTopic   string
	DeliveryTopic string
	Group         string
	Workers       int
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen int32
}

type Retry struct {
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

// Target is the resilience configuration for one downstream collaborator.
// Every target carries its own breaker, so a failing email provider never
// gates the cart store and vice versa.
type Target struct {
	Timeout     time.Duration
	MaxAttempts int
	Breaker     Breaker
}

type Cart struct {
	BaseURL string
}

type Notify struct {
	PushURL        string
	EmailURL       string
	EmailFrom      string
	DispatchBudget time.Duration
}

type Config struct {
	HTTPAddr string

	CacheCap int
	CacheTTL time.Duration

	Pg     Postgres
	Kafka  Kafka
	Cart   Cart
	Notify Notify

	Retry Retry

	CartTarget  Target
	PushTarget  Target
	EmailTarget Target
	InAppTarget Target
}

// Load fatals on error for simplicity in main().
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func load() (Config, error) {
	_ = godotenv.Load("env/.env")

	cfg := Config{
		HTTPAddr: envDefault("HTTP_ADDR", ":8081"),

		CacheCap: envInt("CACHE_CAP", 1000),
		CacheTTL: envDurationMS("CACHE_TTL", 5*time.Minute),

		Pg: Postgres{
			Host:     strings.TrimSpace(os.Getenv("PG_HOST")),
			Port:     strings.TrimSpace(envDefault("PG_PORT", "5432")),
			DB:       strings.TrimSpace(os.Getenv("PG_DB")),
			User:     strings.TrimSpace(os.Getenv("PG_USER")),
			Password: strings.TrimSpace(os.Getenv("PG_PASSWORD")),
			SSLMode:  strings.TrimSpace(envDefault("PG_SSLMODE", "disable")),
		},

		Kafka: Kafka{
			Brokers:       splitCSV(strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))),
			StatusTopic:   envDefault("KAFKA_STATUS_TOPIC", "order-status"),
			DeliveryTopic: envDefault("KAFKA_DELIVERY_TOPIC", "delivery-status"),
			Group:         envDefault("KAFKA_GROUP", "order-engine"),
			Workers:       envInt("KAFKA_WORKERS", 4),
		},

		Cart: Cart{
			BaseURL: strings.TrimSpace(os.Getenv("CART_BASE_URL")),
		},

		Notify: Notify{
			PushURL:        strings.TrimSpace(os.Getenv("NOTIFY_PUSH_URL")),
			EmailURL:       strings.TrimSpace(os.Getenv("NOTIFY_EMAIL_URL")),
			EmailFrom:      envDefault("NOTIFY_EMAIL_FROM", "noreply@freshcart.dev"),
			DispatchBudget: envDurationMS("NOTIFY_DISPATCH_BUDGET", 3*time.Second),
		},

		Retry: Retry{
			Base:         envDurationMS("RETRY_BASE", 100*time.Millisecond),
			Max:          envDurationMS("RETRY_MAX", 5*time.Second),
			JitterFactor: envFloat64("RETRY_JITTERFACTOR", 0.3),
		},

		CartTarget:  loadTarget("CART", 2*time.Second, 3),
		PushTarget:  loadTarget("PUSH", 2*time.Second, 2),
		EmailTarget: loadTarget("EMAIL", 3*time.Second, 2),
		InAppTarget: loadTarget("INAPP", time.Second, 2),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadTarget reads one per-target section, e.g. TARGET_CART_TIMEOUT or
// TARGET_EMAIL_BREAKER_THRESHOLD. Breaker defaults: trip after 5 consecutive
// failures, cool down 30s, allow a single half-open probe.
func loadTarget(name string, timeout time.Duration, attempts int) Target {
	prefix := "TARGET_" + name + "_"
	return Target{
		Timeout:     envDurationMS(prefix+"TIMEOUT", timeout),
		MaxAttempts: envInt(prefix+"ATTEMPTS", attempts),
		Breaker: Breaker{
			Threshold:   envUint32(prefix+"BREAKER_THRESHOLD", 5),
			OpenTimeout: envDurationMS(prefix+"BREAKER_OPENTIMEOUT", 30*time.Second),
			MaxHalfOpen: int32(envInt(prefix+"BREAKER_MAXHALFOPEN", 1)),
		},
	}
}

func (c Config) validate() error {
	var missing []string
	req := map[string]string{
		"PG_HOST":          c.Pg.Host,
		"PG_DB":            c.Pg.DB,
		"PG_USER":          c.Pg.User,
		"PG_PASSWORD":      c.Pg.Password,
		"KAFKA_BROKERS":    strings.Join(c.Kafka.Brokers, ","),
		"CART_BASE_URL":    c.Cart.BaseURL,
		"NOTIFY_PUSH_URL":  c.Notify.PushURL,
		"NOTIFY_EMAIL_URL": c.Notify.EmailURL,
	}
	for k, v := range req {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}

	if c.CacheCap <= 0 {
		log.Printf("CACHE_CAP is %d, adjusting to 1", c.CacheCap)
	}
	if c.Retry.Base <= 0 {
		log.Printf("RETRY_BASE is %v, adjusting to 100ms", c.Retry.Base)
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
	}
	return nil
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

// DSN builds a proper Postgres URL, safely escaping user/pass and query.
func (c Config) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Pg.User, c.Pg.Password),
		Host:   net.JoinHostPort(c.Pg.Host, c.Pg.Port),
		Path:   "/" + c.Pg.DB,
	}
	q := url.Values{}
	if c.Pg.SSLMode != "" {
		q.Set("sslmode", c.Pg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

func envFloat64(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using default %.3f: %v", k, v, def, err)
		return def
	}
	return f
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
