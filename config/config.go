package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Processor ProcessorConfig `yaml:"processor"`
	Mailer    MailerConfig    `yaml:"mailer"`
	Swipline  SwiplineConfig  `yaml:"swipline"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	ParcelEventsTopicName string `yaml:"parcel_events_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ProcessorConfig struct {
	BaseURL        string `yaml:"base_url"`
	SecretKey      string `yaml:"secret_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
	Currency       string `yaml:"currency"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// Окно валидности метки времени в подписи вебхука.
	WebhookToleranceSeconds int `yaml:"webhook_tolerance_seconds"`
}

type MailerConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	From           string `yaml:"from"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SwiplineConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	PublicTrackingTTLSeconds int `yaml:"public_tracking_ttl_seconds"`

	NotifierHTTPAddr          string `yaml:"notifier_http_addr"`
	NotifierMailsPerRecipient int    `yaml:"notifier_mails_per_recipient_per_hour"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
