package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// SysConfig holds process-level settings.
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig holds the inbound HTTP listener settings.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
}

// LogConfig holds zap logger settings.
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// ProviderConfig holds the outbound WPPConnect-compatible provider settings.
type ProviderConfig struct {
	BaseURL   string `yaml:"base_url"`
	SecretKey string `yaml:"secret_key"`
	Timeout   int    `yaml:"timeout"`
}

// AuthConfig holds credential-scheme settings.
type AuthConfig struct {
	// ProxySecret is the shared secret expected from the partner proxy
	// (X-Proxy-Secret header). Requests carrying a different value are
	// rejected before any account lookup.
	ProxySecret string `yaml:"proxy_secret"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system"`
	Web      WebConfig      `yaml:"web"`
	Database DBConfig       `yaml:"database"`
	Logger   LogConfig      `yaml:"logger"`
	Provider ProviderConfig `yaml:"provider"`
	Auth     AuthConfig     `yaml:"auth"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "wppgateway",
			Location: "America/Sao_Paulo",
			Workdir:  "/var/wppgateway",
			Debug:    false,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 1816,
		},
		Database: DBConfig{
			Type:     "postgres",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "wppgateway",
			User:     "postgres",
			Passwd:   "",
			MaxConn:  100,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
			Filename:   "/var/wppgateway/wppgateway.log",
		},
		Provider: ProviderConfig{
			BaseURL:   "http://127.0.0.1:21465",
			SecretKey: "THISISMYSECURETOKEN",
			Timeout:   30,
		},
		Auth: AuthConfig{
			ProxySecret: "",
		},
	}
}

// LoadConfig reads the yaml config file and applies environment overrides.
// A missing file is not an error; defaults are used.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultConfig()
	if cfile != "" {
		if data, err := os.ReadFile(filepath.Clean(cfile)); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}
	setEnvValue("WPPGATEWAY_WORKDIR", &cfg.System.Workdir)
	setEnvValue("WPPGATEWAY_WEB_HOST", &cfg.Web.Host)
	setEnvInt("WPPGATEWAY_WEB_PORT", &cfg.Web.Port)
	setEnvValue("WPPGATEWAY_DB_TYPE", &cfg.Database.Type)
	setEnvValue("WPPGATEWAY_DB_HOST", &cfg.Database.Host)
	setEnvInt("WPPGATEWAY_DB_PORT", &cfg.Database.Port)
	setEnvValue("WPPGATEWAY_DB_NAME", &cfg.Database.Name)
	setEnvValue("WPPGATEWAY_DB_USER", &cfg.Database.User)
	setEnvValue("WPPGATEWAY_DB_PWD", &cfg.Database.Passwd)
	setEnvValue("WPPGATEWAY_PROVIDER_BASEURL", &cfg.Provider.BaseURL)
	setEnvValue("WPPGATEWAY_PROVIDER_SECRET", &cfg.Provider.SecretKey)
	setEnvValue("WPPGATEWAY_PROXY_SECRET", &cfg.Auth.ProxySecret)
	setEnvValue("WPPGATEWAY_LOG_MODE", &cfg.Logger.Mode)
	return cfg
}

func setEnvValue(name string, val *string) {
	if v := os.Getenv(name); v != "" {
		*val = v
	}
}

func setEnvInt(name string, val *int) {
	if v := os.Getenv(name); v != "" {
		*val = cast.ToInt(v)
	}
}
