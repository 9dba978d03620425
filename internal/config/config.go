// Package config provides configuration management for the interview engine
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Interview InterviewConfig `mapstructure:"interview"`
	Session   SessionConfig   `mapstructure:"session"`
}

// LLMConfig configures the chat-completion provider and its request queue
type LLMConfig struct {
	ServerURL   string        `mapstructure:"server_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   int           `mapstructure:"rate_limit"` // max provider calls per minute
}

// SpeechConfig configures synthesis and recognition
type SpeechConfig struct {
	Voice            string        `mapstructure:"voice"`             // preferred synthesis voice
	VoicePreferences []string      `mapstructure:"voice_preferences"` // fallback chain when voice is unset
	Speed            float64       `mapstructure:"speed"`
	SynthesisURL     string        `mapstructure:"synthesis_url"`
	SynthesisAPIKey  string        `mapstructure:"synthesis_api_key"`
	RecognitionURL   string        `mapstructure:"recognition_url"` // websocket endpoint for streaming recognition
	RecognitionKey   string        `mapstructure:"recognition_api_key"`
	Language         string        `mapstructure:"language"`
	InterimResults   bool          `mapstructure:"interim_results"`
	SilenceTimeout   time.Duration `mapstructure:"silence_timeout"`
}

// InterviewConfig configures the interview flow
type InterviewConfig struct {
	QuestionCount int           `mapstructure:"question_count"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"` // pause between speech end and listening start
	TurnSilence   time.Duration `mapstructure:"turn_silence"` // silence after a final transcript that ends the answer turn
}

// SessionConfig configures session persistence
type SessionConfig struct {
	Dir string `mapstructure:"dir"` // directory for persisted session files
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LLM: LLMConfig{
			ServerURL:   "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
			RateLimit:   20,
		},
		Speech: SpeechConfig{
			Voice:            "",
			VoicePreferences: []string{"nova", "shimmer", "alloy"},
			Speed:            1.0,
			SynthesisURL:     "https://api.openai.com/v1/audio/speech",
			RecognitionURL:   "wss://api.deepgram.com/v1/listen",
			Language:         "en-US",
			InterimResults:   true,
			SilenceTimeout:   8 * time.Second,
		},
		Interview: InterviewConfig{
			QuestionCount: 5,
			SettleDelay:   1 * time.Second,
			TurnSilence:   2 * time.Second,
		},
		Session: SessionConfig{
			Dir: filepath.Join(home, ".interviewavatar", "sessions"),
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("INTERVIEWAVATAR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("llm", cfg.LLM)
	viper.Set("speech", cfg.Speech)
	viper.Set("interview", cfg.Interview)
	viper.Set("session", cfg.Session)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".interviewavatar"), nil
}
