package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// parameterStorePrefix marks a config source as an SSM parameter name.
const parameterStorePrefix = "ssm:"

// Config represents the server configuration
type Config struct {
	Server struct {
		HTTPPort int `yaml:"http_port" json:"http_port"`
		GRPCPort int `yaml:"grpc_port" json:"grpc_port"`
	} `yaml:"server" json:"server"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
	AWS struct {
		Region     string `yaml:"region" json:"region"`
		DocumentDB struct {
			ConnectionString    string `yaml:"connection_string" json:"connection_string"`
			PasswordSecretArn   string `yaml:"password_secret_arn" json:"password_secret_arn"`
			DatabaseName        string `yaml:"database_name" json:"database_name"`
			Collection          string `yaml:"collection" json:"collection"`
			CAFile              string `yaml:"ca_file" json:"ca_file"`
			AllowDuplicateNames bool   `yaml:"allow_duplicate_names" json:"allow_duplicate_names"`
		} `yaml:"documentdb" json:"documentdb"`
		ElastiCache struct {
			Address string `yaml:"address" json:"address"`
			TTL     int    `yaml:"ttl" json:"ttl"`
		} `yaml:"elasticache" json:"elasticache"`
	} `yaml:"aws" json:"aws"`
	Enrichment struct {
		Enabled           bool    `yaml:"enabled" json:"enabled"`
		IntervalMinutes   int     `yaml:"interval_minutes" json:"interval_minutes"`
		BaseURL           string  `yaml:"base_url" json:"base_url"`
		AccessToken       string  `yaml:"access_token" json:"access_token"`
		DiscoverQuery     string  `yaml:"discover_query" json:"discover_query"`
		RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
		Concurrency       int     `yaml:"concurrency" json:"concurrency"`
		TimeoutSeconds    int     `yaml:"timeout_seconds" json:"timeout_seconds"`
		RetryCount        int     `yaml:"retry_count" json:"retry_count"`
	} `yaml:"enrichment" json:"enrichment"`
}

// Interval returns the enrichment period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Enrichment.IntervalMinutes) * time.Minute
}

// LoadConfig loads the configuration from a YAML file, or from Parameter Store
// when source starts with "ssm:". An empty source starts from the defaults.
// Environment variables override both.
func LoadConfig(source string) (*Config, error) {
	var config *Config
	var err error

	switch {
	case source == "":
		config = &Config{}
	case strings.HasPrefix(source, parameterStorePrefix):
		sess, serr := session.NewSession()
		if serr != nil {
			return nil, fmt.Errorf("failed to create AWS session: %v", serr)
		}
		config, err = loadConfigFromParameterStore(ssm.New(sess), strings.TrimPrefix(source, parameterStorePrefix))
	default:
		config, err = loadConfigFromFile(source)
	}
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(config, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(config)

	return config, nil
}

// loadConfigFromFile loads the configuration from a YAML file
func loadConfigFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	return &config, nil
}

// loadConfigFromParameterStore loads the configuration from a JSON document
// kept in AWS Parameter Store
func loadConfigFromParameterStore(client ssmiface.SSMAPI, name string) (*Config, error) {
	param, err := client.GetParameter(&ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter from Parameter Store: %v", err)
	}
	if param.Parameter == nil || param.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %s has no value", name)
	}

	var config Config
	if err := json.Unmarshal([]byte(*param.Parameter.Value), &config); err != nil {
		return nil, fmt.Errorf("failed to parse parameter value as JSON: %v", err)
	}

	return &config, nil
}

// applyEnvOverrides applies the deployment environment variables
func applyEnvOverrides(config *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("MONGODB_URL"); ok && v != "" {
		config.AWS.DocumentDB.ConnectionString = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %v", v, err)
		}
		config.Server.HTTPPort = port
	}
	if v, ok := lookup("TMDB_API_ACCESS_TOKEN"); ok && v != "" {
		config.Enrichment.AccessToken = v
	}
	if v, ok := lookup("REDIS_ADDRESS"); ok && v != "" {
		config.AWS.ElastiCache.Address = v
	}
	return nil
}

// applyDefaults sets default values for the configuration
func applyDefaults(config *Config) {
	if config.Server.HTTPPort == 0 {
		config.Server.HTTPPort = 8080
	}
	if config.Server.GRPCPort == 0 {
		config.Server.GRPCPort = 8081
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	if config.AWS.Region == "" {
		config.AWS.Region = "us-west-2"
	}
	// No default connection string, it names the cluster endpoint
	if config.AWS.DocumentDB.DatabaseName == "" {
		config.AWS.DocumentDB.DatabaseName = "movie-catalog"
	}
	if config.AWS.DocumentDB.Collection == "" {
		config.AWS.DocumentDB.Collection = "movies"
	}
	if config.AWS.ElastiCache.TTL == 0 {
		config.AWS.ElastiCache.TTL = 86400
	}
	if config.Enrichment.IntervalMinutes == 0 {
		config.Enrichment.IntervalMinutes = 60
	}
	if config.Enrichment.BaseURL == "" {
		config.Enrichment.BaseURL = "https://api.themoviedb.org/3"
	}
	if config.Enrichment.RequestsPerSecond == 0 {
		config.Enrichment.RequestsPerSecond = 20
	}
	if config.Enrichment.Concurrency == 0 {
		config.Enrichment.Concurrency = 4
	}
	if config.Enrichment.TimeoutSeconds == 0 {
		config.Enrichment.TimeoutSeconds = 30
	}
	if config.Enrichment.RetryCount == 0 {
		config.Enrichment.RetryCount = 3
	}
}

// NewLogger builds the process logger from the log settings.
func NewLogger(config *Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(config.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %v", config.Log.Level, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	switch config.Log.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", config.Log.Format)
	}

	return logger, nil
}
