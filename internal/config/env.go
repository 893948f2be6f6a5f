package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".novelguild/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"novelguild/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

// PromptEnv locates persona prompt documents. They are always read from
// the local filesystem so they can be edited and hot reloaded.
type PromptEnv struct {
	Dir   string `envconfig:"PROMPT_DIR" default:"prompts"`
	Watch bool   `envconfig:"PROMPT_WATCH" default:"true"`
}

type GenerationEnv struct {
	Provider       string        `envconfig:"GENERATION_PROVIDER" default:"gemini"`
	GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL  string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel    string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	Timeout        time.Duration `envconfig:"GENERATION_TIMEOUT" default:"2m"`
	MaxAttempts    int           `envconfig:"GENERATION_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"GENERATION_INITIAL_BACKOFF" default:"1s"`
	ClaudeMaxTurns int           `envconfig:"CLAUDE_MAX_TURNS" default:"1"`
}

type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Contact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	PromptEnv
	GenerationEnv
	VAPIDEnv
}

const namespace = "NOVELGUILD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.GenerationEnv.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *GenerationEnv) validate() error {
	switch e.Provider {
	case "gemini":
		if e.GeminiAPIKey == "" {
			return fmt.Errorf("%s_GEMINI_API_KEY is required for the gemini provider", namespace)
		}
	case "claude":
	default:
		return fmt.Errorf("unknown generation provider %q", e.Provider)
	}
	if e.MaxAttempts < 1 {
		return fmt.Errorf("%s_GENERATION_MAX_ATTEMPTS must be at least 1", namespace)
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func (e *BaseEnv) IsLocal() bool {
	return e.Env == "local"
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func PromptEnvFromEnv(env *Env) *PromptEnv {
	return &env.PromptEnv
}

func GenerationEnvFromEnv(env *Env) *GenerationEnv {
	return &env.GenerationEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
