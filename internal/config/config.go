package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Avatar/internal/domain"
)

const EnvPrefix = "AVATAR"

var ErrNoTokenURL = errors.New("token_url is required")

type HeyGen struct {
	APIBase string `mapstructure:"api_base"`
	WSBase  string `mapstructure:"ws_base"`
}

type Avatar struct {
	ID                 string  `mapstructure:"id"`
	Quality            string  `mapstructure:"quality"`
	Persona            string  `mapstructure:"persona"`
	Greeting           string  `mapstructure:"greeting"`
	VoiceRate          float64 `mapstructure:"voice_rate"`
	VoiceEmotion       string  `mapstructure:"voice_emotion"`
	Language           string  `mapstructure:"language"`
	DisableIdleTimeout bool    `mapstructure:"disable_idle_timeout"`
	SilencePrompt      bool    `mapstructure:"silence_prompt"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	TokenURL string `mapstructure:"token_url"`
	HeyGen   HeyGen `mapstructure:"heygen"`
	Avatar   Avatar `mapstructure:"avatar"`

	WatchdogTimeout  time.Duration `mapstructure:"watchdog_timeout"`
	MuteRateLimit    int           `mapstructure:"mute_rate_limit"`
	MuteRateInterval time.Duration `mapstructure:"mute_rate_interval"`
	ICEServers       []string      `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	def := domain.DefaultPersonaConfig()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("token_url", "http://localhost:3000/api/get-access-token")
	v.SetDefault("heygen.api_base", "https://api.heygen.com")
	v.SetDefault("heygen.ws_base", "wss://api.heygen.com")

	v.SetDefault("avatar.id", def.Start.AvatarName)
	v.SetDefault("avatar.quality", string(def.Start.Quality))
	v.SetDefault("avatar.persona", def.Start.KnowledgeBase)
	v.SetDefault("avatar.greeting", def.Greeting.Text)
	v.SetDefault("avatar.voice_rate", def.Start.Voice.Rate)
	v.SetDefault("avatar.voice_emotion", string(def.Start.Voice.Emotion))
	v.SetDefault("avatar.language", def.Start.Language)
	v.SetDefault("avatar.disable_idle_timeout", def.Start.DisableIdleTimeout)
	v.SetDefault("avatar.silence_prompt", def.VoiceChat.UseSilencePrompt)

	v.SetDefault("watchdog_timeout", "30s")
	v.SetDefault("mute_rate_limit", 5)
	v.SetDefault("mute_rate_interval", "10s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
}

// Load reads config/config.<env>.yaml, where env comes from the
// --config-env flag, then CONFIG_ENV, then "dev". AVATAR_* variables and
// flags override the file. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	env := os.Getenv("CONFIG_ENV")
	if flags != nil {
		if f := flags.Lookup("config-env"); f != nil && f.Changed {
			env = f.Value.String()
		}
		for key, name := range map[string]string{"port": "port", "log_level": "log-level"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.TokenURL == "" {
		return nil, ErrNoTokenURL
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("avatar", cfg.Avatar.ID).
		Msg("config ready")
	return &cfg, nil
}

// Persona turns the avatar section into what the startup sequence sends.
func (c *Config) Persona() domain.Persona {
	p := domain.DefaultPersonaConfig()
	a := c.Avatar
	if a.ID != "" {
		p.Start.AvatarName = a.ID
	}
	if a.Quality != "" {
		p.Start.Quality = domain.Quality(a.Quality)
	}
	p.Start.KnowledgeBase = a.Persona
	if a.VoiceRate > 0 {
		p.Start.Voice.Rate = a.VoiceRate
	}
	if a.VoiceEmotion != "" {
		p.Start.Voice.Emotion = domain.VoiceEmotion(a.VoiceEmotion)
	}
	if a.Language != "" {
		p.Start.Language = a.Language
	}
	p.Start.DisableIdleTimeout = a.DisableIdleTimeout
	p.VoiceChat.UseSilencePrompt = a.SilencePrompt
	p.Greeting.Text = a.Greeting
	return p
}
