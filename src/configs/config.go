package configs

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full server configuration loaded from yaml.
type Config struct {
	Server struct {
		IP    string `yaml:"ip"`
		Port  int    `yaml:"port"`
		Token string `yaml:"token"`
		Auth  struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	Web struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"web"`

	Upload UploadConfig `yaml:"upload"`

	SelectedModule map[string]string `yaml:"selected_module"`

	LLM map[string]LLMConfig `yaml:"LLM"`
	OCR map[string]OCRConfig `yaml:"OCR"`

	Email EmailConfig `yaml:"email"`

	// Per-category placeholder overrides, keyed by category id
	// ("name", "email", ...). Unset categories keep the built-in defaults.
	Placeholders map[string]string `yaml:"placeholders"`
}

// LLMConfig configures one chat-completion backend.
type LLMConfig struct {
	Type        string                 `yaml:"type"`
	ModelName   string                 `yaml:"model_name"`
	BaseURL     string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	Temperature float64                `yaml:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens"`
	TopP        float64                `yaml:"top_p"`
	Extra       map[string]interface{} `yaml:",inline"`
}

// OCRConfig configures one OCR backend.
type OCRConfig struct {
	Type    string                 `yaml:"type"`
	BaseURL string                 `yaml:"url"`
	APIKey  string                 `yaml:"api_key"`
	Engine  int                    `yaml:"engine"`
	Extra   map[string]interface{} `yaml:",inline"`
}

// UploadConfig limits incoming image uploads.
type UploadConfig struct {
	MaxFileSize int64  `yaml:"max_file_size"` // bytes, per image
	MaxImages   int    `yaml:"max_images"`
	Dir         string `yaml:"dir"`
}

// EmailTransportConfig configures a single mail transport.
type EmailTransportConfig struct {
	APIKey string `yaml:"api_key"`
	From   string `yaml:"from"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
}

// EmailConfig selects between the local relay and the production chain.
type EmailConfig struct {
	// false: mailpit local relay; true: resend with sendgrid fallback
	UseProduction bool                 `yaml:"use_production"`
	Mailpit       EmailTransportConfig `yaml:"mailpit"`
	Resend        EmailTransportConfig `yaml:"resend"`
	SendGrid      EmailTransportConfig `yaml:"sendgrid"`
}

// LoadConfig reads .config.yaml, falling back to config.yaml.
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, err
	}
	config.applyDefaults()
	config.applyEnvOverrides()

	return config, path, nil
}

func (c *Config) applyDefaults() {
	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = 5 * 1024 * 1024
	}
	if c.Upload.MaxImages <= 0 {
		c.Upload.MaxImages = 10
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = "uploads"
	}
	if c.Email.Mailpit.Host == "" {
		c.Email.Mailpit.Host = "localhost"
	}
	if c.Email.Mailpit.Port == 0 {
		c.Email.Mailpit.Port = 1025
	}
}

// applyEnvOverrides fills credentials left blank in yaml from the environment.
func (c *Config) applyEnvOverrides() {
	for name, llm := range c.LLM {
		if llm.APIKey == "" {
			llm.APIKey = firstEnv("LLM_API_KEY", "GROQ_API_KEY")
			c.LLM[name] = llm
		}
	}
	for name, ocr := range c.OCR {
		if ocr.APIKey == "" {
			ocr.APIKey = os.Getenv("OCRSPACE_API_KEY")
			c.OCR[name] = ocr
		}
	}
	if c.Email.Resend.APIKey == "" {
		c.Email.Resend.APIKey = os.Getenv("RESEND_API_KEY")
	}
	if c.Email.Resend.From == "" {
		c.Email.Resend.From = os.Getenv("EMAIL_SENDER_RESEND")
	}
	if c.Email.SendGrid.APIKey == "" {
		c.Email.SendGrid.APIKey = os.Getenv("SENDGRID_API_KEY")
	}
	if c.Email.SendGrid.From == "" {
		c.Email.SendGrid.From = os.Getenv("EMAIL_SENDER_SENDGRID")
	}
	if c.Email.Mailpit.From == "" {
		c.Email.Mailpit.From = os.Getenv("EMAIL_SENDER_MAILPIT")
	}
	if os.Getenv("USE_PRODUCTION_EMAIL") == "true" {
		c.Email.UseProduction = true
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
