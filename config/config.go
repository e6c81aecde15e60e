package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ghstats/models"
	"ghstats/throughput"
)

// ErrInvalid is wrapped by every configuration problem reported by Load or Validate.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	GitHub      GitHubConfig
	Query       QueryConfig
	Store       StoreConfig
	Events      EventConfig
	Email       EmailConfig
	Scheduler   SchedulerConfig
	S3          S3Config
	SourcesFile string
	DBPath      string
	MetricsAddr string
	LogFile     string
	LogMaxBytes int64
}

type GitHubConfig struct {
	Token      string
	APIURL     string
	GraphQLURL string
}

type QueryConfig struct {
	ReposPerBatch int
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMax      time.Duration
}

type StoreConfig struct {
	Driver                string
	DatabaseURL           string
	ServerlessMode        bool
	ProvisionedThroughput int
	WriteCostUnits        int
	Cooldown              time.Duration
}

type EventConfig struct {
	Publish           bool
	Bus               string
	EventGridEndpoint string
	EventGridKey      string
	KafkaBrokers      []string
	KafkaTopic        string
}

type EmailConfig struct {
	Enabled      bool
	SendGridHost string
	APIKey       string
	From         string
	To           string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		GitHub: GitHubConfig{
			Token:      os.Getenv("GITHUB_TOKEN"),
			APIURL:     env.get("GITHUB_API_URL", "https://api.github.com"),
			GraphQLURL: env.get("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		},
		Query: QueryConfig{
			ReposPerBatch: env.getInt("REPOS_PER_QUERY_BATCH", 50),
			MaxAttempts:   env.getInt("QUERY_MAX_ATTEMPTS", 5),
			RetryBase:     env.getDuration("QUERY_RETRY_BASE", 60*time.Second),
			RetryMax:      env.getDuration("QUERY_RETRY_MAX", 10*time.Minute),
		},
		Store: StoreConfig{
			Driver:                env.get("STORE_DRIVER", "postgres"),
			DatabaseURL:           os.Getenv("DATABASE_URL"),
			ServerlessMode:        env.getBool("STORE_SERVERLESS_MODE", false),
			ProvisionedThroughput: env.getInt("STORE_PROVISIONED_THROUGHPUT", 400),
			WriteCostUnits:        env.getInt("STORE_WRITE_COST_UNITS", 5),
			Cooldown:              env.getDuration("STORE_COOLDOWN", time.Second),
		},
		Events: EventConfig{
			Publish:           env.getBool("PUBLISH_TO_EVENT_BUS", false),
			Bus:               env.get("EVENT_BUS", "eventgrid"),
			EventGridEndpoint: os.Getenv("EVENT_GRID_ENDPOINT"),
			EventGridKey:      os.Getenv("EVENT_GRID_KEY"),
			KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:        env.get("KAFKA_TOPIC", "ghstats.runs"),
		},
		Email: EmailConfig{
			Enabled:      env.getBool("SEND_EMAIL_NOTIFICATIONS", false),
			SendGridHost: env.get("SENDGRID_HOST", "https://api.sendgrid.com"),
			APIKey:       os.Getenv("SENDGRID_API_KEY"),
			From:         os.Getenv("EMAIL_FROM"),
			To:           os.Getenv("EMAIL_TO"),
		},
		Scheduler: SchedulerConfig{
			Interval: env.getDuration("SYNC_INTERVAL", 0),
			Cron:     os.Getenv("SYNC_CRON"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          env.get("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		SourcesFile: env.get("SOURCES_FILE", "data/sources.json"),
		DBPath:      env.get("DB_PATH", "ghstats.db"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		LogFile:     env.get("LOG_FILE", "ghstats.log"),
		LogMaxBytes: int64(env.getInt("LOG_MAX_BYTES", 2*1024*1024)),
	}

	if len(env.problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(env.problems, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every recognized option at once and reports all problems together.
func (c *Config) Validate() error {
	var problems []string

	if c.GitHub.Token == "" {
		problems = append(problems, "GITHUB_TOKEN is required")
	}
	if c.Query.ReposPerBatch <= 0 {
		problems = append(problems, "REPOS_PER_QUERY_BATCH must be positive")
	}
	if c.Query.MaxAttempts <= 0 {
		problems = append(problems, "QUERY_MAX_ATTEMPTS must be positive")
	}
	if c.Query.RetryBase <= 0 || c.Query.RetryMax < c.Query.RetryBase {
		problems = append(problems, "QUERY_RETRY_BASE must be positive and not exceed QUERY_RETRY_MAX")
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres store")
		}
	case "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if !c.Store.ServerlessMode {
		if c.Store.WriteCostUnits <= 0 {
			problems = append(problems, "STORE_WRITE_COST_UNITS must be positive")
		} else if c.Store.BudgetBytes() <= 0 {
			problems = append(problems, fmt.Sprintf("STORE_PROVISIONED_THROUGHPUT %d leaves no write budget after the %d byte buffer",
				c.Store.ProvisionedThroughput, throughput.SafetyBufferBytes))
		}
	}

	if c.Events.Publish {
		switch c.Events.Bus {
		case "eventgrid":
			if c.Events.EventGridEndpoint == "" || c.Events.EventGridKey == "" {
				problems = append(problems, "EVENT_GRID_ENDPOINT and EVENT_GRID_KEY are required to publish")
			}
		case "kafka":
			if len(c.Events.KafkaBrokers) == 0 {
				problems = append(problems, "KAFKA_BROKERS is required to publish")
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown EVENT_BUS %q", c.Events.Bus))
		}
	}

	if c.Email.Enabled && (c.Email.APIKey == "" || c.Email.From == "" || c.Email.To == "") {
		problems = append(problems, "SENDGRID_API_KEY, EMAIL_FROM and EMAIL_TO are required when email is enabled")
	}

	if _, err := os.Stat(c.SourcesFile); err != nil {
		problems = append(problems, fmt.Sprintf("sources file: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// BudgetBytes is the provisioned write budget per window.
func (s StoreConfig) BudgetBytes() int {
	return throughput.Budget(s.ProvisionedThroughput, s.WriteCostUnits)
}

// LoadSources reads the repository source file. JSON files parse as YAML.
func LoadSources(path string) (*models.Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}

	var sources models.Sources
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("parse sources %s: %w", path, err)
	}

	for _, org := range sources.FullOrgs {
		if org.OrgName == "" {
			return nil, fmt.Errorf("parse sources %s: organization without orgName", path)
		}
	}
	for _, repo := range sources.IndividualRepos {
		if owner, name, ok := strings.Cut(repo, "/"); !ok || owner == "" || name == "" {
			return nil, fmt.Errorf("parse sources %s: %q is not owner/name", path, repo)
		}
	}

	return &sources, nil
}

// envReader reads typed options and remembers every value that fails to parse.
type envReader struct {
	problems []string
}

func (r *envReader) get(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func (r *envReader) getInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not an integer", key, val))
		return defaultVal
	}
	return i
}

func (r *envReader) getBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.ToLower(val))
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not a boolean", key, val))
		return defaultVal
	}
	return b
}

func (r *envReader) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not a duration", key, val))
		return defaultVal
	}
	return d
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
