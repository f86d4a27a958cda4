// Package config assembles process configuration from the environment and
// the optional YAML build manifest.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"

	"proteinshake/internal/util"
	"proteinshake/pkg/dataset"
	"proteinshake/pkg/graph"
)

type Config struct {
	Debug bool

	// DataRoot holds one directory per dataset instance.
	DataRoot string `validate:"required"`
	Parallel int    `validate:"gte=0"`

	DatabaseURL string `validate:"omitempty,url"`
	RedisAddr   string
	RedisTTL    string

	S3 S3Config

	RabbitMQ RabbitMQConfig

	Port         string `validate:"required,numeric"`
	AuthURL      string `validate:"omitempty,url"`
	MasterAPIKey string
}

type S3Config struct {
	Bucket         string
	Region         string
	Endpoint       string `validate:"omitempty,url"`
	PublicEndpoint string `validate:"omitempty,url"`
	AccessKey      string
	SecretKey      string
	// RawPrefix is the key prefix below which raw files of a dataset live,
	// as <RawPrefix>/<dataset>/.
	RawPrefix string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type RabbitMQConfig struct {
	User     string
	Password string
	Host     string
	Port     string `validate:"omitempty,numeric"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

func (c RabbitMQConfig) Enabled() bool {
	return c.Host != ""
}

// Load reads the configuration from the environment (and a .env file if
// present) and validates it.
func Load() (*Config, error) {
	util.LoadEnv()

	c := &Config{
		Debug:       util.GetEnvBool("DEBUG", false),
		DataRoot:    util.GetEnvString("DATA_ROOT", "data"),
		Parallel:    util.GetEnvInt("PARALLEL", 0),
		DatabaseURL: util.GetEnv("DATABASE_URL"),
		RedisAddr:   util.GetEnv("REDIS_ADDR"),
		RedisTTL:    util.GetEnvString("REDIS_TTL", "24h"),
		S3: S3Config{
			Bucket:         util.GetEnv("AWS_BUCKET"),
			Region:         util.GetEnvString("AWS_REGION", "us-east-1"),
			Endpoint:       util.GetEnv("AWS_ENDPOINT"),
			PublicEndpoint: util.GetEnv("AWS_PUBLIC_ENDPOINT"),
			AccessKey:      util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey:      util.GetEnv("AWS_SECRET_KEY"),
			RawPrefix:      util.GetEnvString("AWS_RAW_PREFIX", "raw"),
		},
		RabbitMQ: RabbitMQConfig{
			User:     util.GetEnv("RABBITMQ_USER"),
			Password: util.GetEnv("RABBITMQ_PASSWORD"),
			Host:     util.GetEnv("RABBITMQ_HOST"),
			Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		},
		Port:         util.GetEnvString("PORT", "8080"),
		AuthURL:      util.GetEnv("AUTH_URL"),
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// Manifest lists the dataset builds a worker runs at startup.
type Manifest struct {
	Builds []Build `yaml:"builds" validate:"dive"`
}

type Build struct {
	// Name is the dataset instance name; defaults to Kind.
	Name           string         `json:"name,omitempty" yaml:"name"`
	Kind           string         `json:"kind" yaml:"kind" validate:"required"`
	UsePrecomputed bool           `json:"use_precomputed,omitempty" yaml:"use_precomputed"`
	Limit          int            `json:"limit,omitempty" yaml:"limit" validate:"gte=0"`
	Graphs         []graph.Policy `json:"graphs,omitempty" yaml:"graphs"`
	Similarity     bool           `json:"similarity,omitempty" yaml:"similarity"`
	Publish        bool           `json:"publish,omitempty" yaml:"publish"`
	Index          bool           `json:"index,omitempty" yaml:"index"`
}

func (b Build) DatasetName() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Kind
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := validator.New().Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	for i, b := range m.Builds {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("build %d: %w", i, err)
		}
	}
	return &m, nil
}

// Validate checks the kind against the dataset registry and every graph
// policy.
func (b Build) Validate() error {
	if err := validator.New().Struct(b); err != nil {
		return err
	}
	if _, err := dataset.Lookup(b.Kind); err != nil {
		return err
	}
	for _, p := range b.Graphs {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
