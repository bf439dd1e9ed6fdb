package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shouni/go-yomiage/pkg/voicevox"
	"github.com/shouni/go-yomiage/pkg/yomiage/batch"
	"github.com/shouni/go-yomiage/pkg/yomiage/notify"
	"github.com/shouni/go-yomiage/pkg/yomiage/problem"
)

type VoicevoxConfig struct {
	APIURL      string  `yaml:"api_url"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	RateLimit   float64 `yaml:"rate_limit"`
	SpeakerID   int     `yaml:"speaker_id"`
	SpeakerName string  `yaml:"speaker_name"`
	StyleName   string  `yaml:"style_name"`
	Stub        bool    `yaml:"stub"` // エンジンを使わずスタブで合成する
}

type GenerationConfig struct {
	Count      int     `yaml:"count"`
	GenType    string  `yaml:"gen_type"` // addition|mix|alternating または 0|1|2
	SpeedScale float64 `yaml:"speed_scale"`
	OutputRoot string  `yaml:"output_root"`
}

type BusConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Servers          []string `yaml:"servers"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	Token            string   `yaml:"token"`
	ConnectTimeoutMS int      `yaml:"connect_timeout_ms"`
	ProgressSubject  string   `yaml:"progress_subject"`
	CancelSubject    string   `yaml:"cancel_subject"`
}

type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Voicevox   VoicevoxConfig   `yaml:"voicevox"`
	Problem    problem.Config   `yaml:"problem"`
	Generation GenerationConfig `yaml:"generation"`
	Bus        BusConfig        `yaml:"bus"`
}

// DefaultOutputPath は出力ルートの既定値 (ホームの Music/yish) を返します。
func DefaultOutputPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "yish")
	}
	return filepath.Join(home, "Music", "yish")
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Voicevox: VoicevoxConfig{
			TimeoutMS: int(voicevox.DefaultClientTimeout / time.Millisecond),
			SpeakerID: voicevox.DefaultSpeakerID,
		},
		Problem: problem.Config{
			MinDigit:     3,
			MaxDigit:     6,
			Length:       10,
			Subtractions: 3,
		},
		Generation: GenerationConfig{
			Count:      4,
			GenType:    batch.Alternating.String(),
			SpeedScale: 1.0,
			OutputRoot: DefaultOutputPath(),
		},
		Bus: BusConfig{
			Servers:          []string{"nats://localhost:4222"},
			ConnectTimeoutMS: 2000,
			ProgressSubject:  notify.DefaultProgressSubject,
			CancelSubject:    notify.DefaultCancelSubject,
		},
	}
}

// LoadDotEnv は .env ファイルを環境変数に読み込みます。ファイルが存在しない場合は何もしません。
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf(".envファイルの読み込みに失敗しました: %w", err)
	}
	return nil
}

// Load は既定値に設定ファイルと環境変数を順に適用した設定を返します。
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("設定ファイルが見つかりません: %w", err)
			}
			return cfg, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.LogLevel, "YOMIAGE_LOG_LEVEL")
	overrideString(&cfg.Voicevox.APIURL, "VOICEVOX_API_URL")
	overrideInt(&cfg.Voicevox.TimeoutMS, "YOMIAGE_VOICEVOX_TIMEOUT_MS")
	overrideFloat(&cfg.Voicevox.RateLimit, "YOMIAGE_VOICEVOX_RATE_LIMIT")
	overrideInt(&cfg.Voicevox.SpeakerID, "YOMIAGE_SPEAKER_ID")
	overrideString(&cfg.Voicevox.SpeakerName, "YOMIAGE_SPEAKER_NAME")
	overrideString(&cfg.Voicevox.StyleName, "YOMIAGE_STYLE_NAME")
	overrideBool(&cfg.Voicevox.Stub, "YOMIAGE_VOICEVOX_STUB")
	overrideInt(&cfg.Problem.MinDigit, "YOMIAGE_MIN_DIGIT")
	overrideInt(&cfg.Problem.MaxDigit, "YOMIAGE_MAX_DIGIT")
	overrideInt(&cfg.Problem.Length, "YOMIAGE_LENGTH")
	overrideInt(&cfg.Problem.Subtractions, "YOMIAGE_SUBTRACTIONS")
	overrideBool(&cfg.Problem.AllowNegative, "YOMIAGE_ALLOW_NEGATIVE")
	overrideInt(&cfg.Generation.Count, "YOMIAGE_COUNT")
	overrideString(&cfg.Generation.GenType, "YOMIAGE_GEN_TYPE")
	overrideFloat(&cfg.Generation.SpeedScale, "YOMIAGE_SPEED_SCALE")
	overrideString(&cfg.Generation.OutputRoot, "YOMIAGE_OUTPUT_ROOT")
	overrideBool(&cfg.Bus.Enabled, "YOMIAGE_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "YOMIAGE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "YOMIAGE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "YOMIAGE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "YOMIAGE_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeoutMS, "YOMIAGE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.ProgressSubject, "YOMIAGE_BUS_PROGRESS_SUBJECT")
	overrideString(&cfg.Bus.CancelSubject, "YOMIAGE_BUS_CANCEL_SUBJECT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate は設定値の整合性を確認します。
func (c Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Voicevox.TimeoutMS < 0 {
		return errors.New("voicevox.timeout_ms は 0 以上である必要があります")
	}
	if c.Voicevox.SpeakerID < 0 {
		return errors.New("voicevox.speaker_id は 0 以上である必要があります")
	}
	if err := c.Problem.Validate(); err != nil {
		return err
	}
	if c.Generation.Count < 0 {
		return errors.New("generation.count は 0 以上である必要があります")
	}
	if _, err := batch.ParseGenType(c.Generation.GenType); err != nil {
		return err
	}
	if c.Generation.SpeedScale <= 0 {
		return errors.New("generation.speed_scale は正の値である必要があります")
	}
	if c.Generation.OutputRoot == "" {
		return errors.New("generation.output_root が設定されていません")
	}
	if c.Bus.Enabled && len(c.Bus.Servers) == 0 {
		return errors.New("bus.enabled の場合は bus.servers が必要です")
	}
	return nil
}

// SlogLevel は log_level を slog.Level に変換します。
func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level が不正です: %q (debug|info|warn|error)", c.LogLevel)
}

// VoicevoxSetup は voicevox.Setup に渡す設定を返します。
func (c Config) VoicevoxSetup() voicevox.Config {
	return voicevox.Config{
		APIURL:      c.Voicevox.APIURL,
		Timeout:     time.Duration(c.Voicevox.TimeoutMS) * time.Millisecond,
		RateLimit:   c.Voicevox.RateLimit,
		SpeakerID:   c.Voicevox.SpeakerID,
		SpeakerName: c.Voicevox.SpeakerName,
		StyleName:   c.Voicevox.StyleName,
	}
}

// NotifyBus は notify.Connect に渡す設定を返します。
func (c Config) NotifyBus() notify.BusConfig {
	return notify.BusConfig{
		Servers:         c.Bus.Servers,
		ConnectTimeout:  time.Duration(c.Bus.ConnectTimeoutMS) * time.Millisecond,
		Username:        c.Bus.Username,
		Password:        c.Bus.Password,
		Token:           c.Bus.Token,
		ProgressSubject: c.Bus.ProgressSubject,
		CancelSubject:   c.Bus.CancelSubject,
	}
}

// Request はバッチ生成要求を組み立てます。
func (c Config) Request() (batch.Request, error) {
	genType, err := batch.ParseGenType(c.Generation.GenType)
	if err != nil {
		return batch.Request{}, err
	}
	return batch.Request{
		Problem:    c.Problem,
		Count:      c.Generation.Count,
		GenType:    genType,
		SpeedScale: c.Generation.SpeedScale,
		OutputRoot: c.Generation.OutputRoot,
	}, nil
}
