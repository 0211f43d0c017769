package configs

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
server:
  ip: 0.0.0.0
  port: 8000
  token: secret
log:
  log_level: debug
web:
  port: 8080
selected_module:
  LLM: GroqLLM
  OCR: OCRSpace
LLM:
  GroqLLM:
    type: openai
    model_name: llama-3.3-70b-versatile
    url: https://api.groq.com/openai/v1
    temperature: 0.3
OCR:
  OCRSpace:
    type: ocrspace
    engine: 2
email:
  use_production: false
placeholders:
  name: "[PERSON]"
`

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func writeConfig(t *testing.T, name, content string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, dir)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gk-test")
	t.Setenv("OCRSPACE_API_KEY", "ok-test")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("USE_PRODUCTION_EMAIL", "")
	writeConfig(t, "config.yaml", sampleYAML)

	config, path, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if path != "config.yaml" {
		t.Errorf("expected fallback path, got %s", path)
	}

	if config.SelectedModule["LLM"] != "GroqLLM" {
		t.Errorf("selected LLM: %s", config.SelectedModule["LLM"])
	}
	if got := config.LLM["GroqLLM"]; got.APIKey != "gk-test" || got.ModelName != "llama-3.3-70b-versatile" {
		t.Errorf("LLM config: %+v", got)
	}
	if got := config.OCR["OCRSpace"]; got.APIKey != "ok-test" || got.Engine != 2 {
		t.Errorf("OCR config: %+v", got)
	}
	if config.Placeholders["name"] != "[PERSON]" {
		t.Errorf("placeholders: %v", config.Placeholders)
	}

	// defaults
	if config.Upload.MaxFileSize != 5*1024*1024 || config.Upload.MaxImages != 10 {
		t.Errorf("upload defaults: %+v", config.Upload)
	}
	if config.Email.Mailpit.Host != "localhost" || config.Email.Mailpit.Port != 1025 {
		t.Errorf("mailpit defaults: %+v", config.Email.Mailpit)
	}
	if config.Email.UseProduction {
		t.Error("use_production must stay false without the env override")
	}
}

func TestLoadConfigPrefersDotfile(t *testing.T) {
	dir := t.TempDir()
	for name, token := range map[string]string{
		".config.yaml": "dot",
		"config.yaml":  "plain",
	} {
		content := "server:\n  token: " + token + "\n"
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	chdir(t, dir)

	config, path, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if path != ".config.yaml" || config.Server.Token != "dot" {
		t.Errorf("expected .config.yaml to win, got path=%s token=%s", path, config.Server.Token)
	}
}

func TestProductionEmailEnvOverride(t *testing.T) {
	t.Setenv("USE_PRODUCTION_EMAIL", "true")
	writeConfig(t, "config.yaml", sampleYAML)

	config, _, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !config.Email.UseProduction {
		t.Error("USE_PRODUCTION_EMAIL=true must enable the production chain")
	}
}
