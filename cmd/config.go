/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/rephraser/internal/cache"
	"github.com/valpere/rephraser/internal/engine"
	"github.com/valpere/rephraser/internal/pivot"
	"github.com/valpere/rephraser/internal/ranker"
	"github.com/valpere/rephraser/internal/textutil"
)

const (
	defaultConfigFile = "rephraser.yaml"
	envPrefix         = "REPHRASER"
)

var defaultEngineCommands = map[string]string{
	"forward":  "queryPhraseTableMin -m 15 -n 12 -s -t phrase-table-en-es.minphr",
	"backward": "queryPhraseTableMin -m 15 -n 12 -s -t phrase-table-es-en.minphr",
	"lm":       "query -n lm.binlm",
}

type Config struct {
	Engines     EnginesConfig  `mapstructure:"engines"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Pipeline    pivot.Config   `mapstructure:"pipeline"`
	Ranker      RankerConfig   `mapstructure:"ranker"`
	Context     ContextConfig  `mapstructure:"context"`
	History     HistoryConfig  `mapstructure:"history"`
	Language    LanguageConfig `mapstructure:"language"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
}

type EngineCommand struct {
	Command string `mapstructure:"command"`
}

type EnginesConfig struct {
	Forward      EngineCommand `mapstructure:"forward"`
	Backward     EngineCommand `mapstructure:"backward"`
	LM           EngineCommand `mapstructure:"lm"`
	Nice         int           `mapstructure:"nice"`
	Settle       time.Duration `mapstructure:"settle"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	WarmTimeout  time.Duration `mapstructure:"warm_timeout"`
}

type CacheConfig struct {
	Size int `mapstructure:"size"`
}

type RankerConfig struct {
	TopN int `mapstructure:"top_n"`
}

type ContextConfig struct {
	Window int `mapstructure:"window"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DB      string `mapstructure:"db"`
}

type LanguageConfig struct {
	Source string `mapstructure:"source"`
	Check  bool   `mapstructure:"check"`
}

func setDefaults(v *viper.Viper) {
	for name, command := range defaultEngineCommands {
		v.SetDefault("engines."+name+".command", command)
	}
	v.SetDefault("engines.nice", engine.DefaultNice)
	v.SetDefault("engines.settle", engine.DefaultSettleDelay)
	v.SetDefault("engines.idle_timeout", engine.DefaultIdleTimeout)
	v.SetDefault("engines.poll_interval", engine.DefaultPollInterval)
	v.SetDefault("engines.warm_timeout", time.Minute)

	v.SetDefault("cache.size", cache.DefaultSize)
	v.SetDefault("pipeline.full_span_keep", pivot.DefaultFullSpanKeep)
	v.SetDefault("pipeline.partial_span_keep", pivot.DefaultPartialSpanKeep)
	v.SetDefault("pipeline.oov_score", pivot.DefaultOOVScore)
	v.SetDefault("ranker.top_n", ranker.DefaultTopN)
	v.SetDefault("context.window", textutil.DefaultContextWords)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db", "./data/rephraser.db")
	v.SetDefault("language.source", "en")
	v.SetDefault("language.check", false)
	v.SetDefault("metrics_addr", "")
}

// loadConfig reads configFile (or ./rephraser.yaml when present) and
// REPHRASER_* environment variables on top of the defaults. Flags already
// bound to v take precedence.
func loadConfig(v *viper.Viper, configFile string) (Config, error) {
	var cfg Config

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case configFile != "":
		v.SetConfigFile(configFile)
	default:
		if _, err := os.Stat(defaultConfigFile); err == nil {
			v.SetConfigFile(defaultConfigFile)
		}
	}
	if v.ConfigFileUsed() != "" {
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	for name, cmd := range map[string]string{
		"forward":  c.Engines.Forward.Command,
		"backward": c.Engines.Backward.Command,
		"lm":       c.Engines.LM.Command,
	} {
		if strings.TrimSpace(cmd) == "" {
			errs = append(errs, fmt.Errorf("engines.%s.command must not be empty", name))
		}
	}
	for key, d := range map[string]time.Duration{
		"engines.settle":        c.Engines.Settle,
		"engines.idle_timeout":  c.Engines.IdleTimeout,
		"engines.poll_interval": c.Engines.PollInterval,
		"engines.warm_timeout":  c.Engines.WarmTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", key, d))
		}
	}
	if c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size))
	}
	if c.History.Enabled && c.History.DB == "" {
		errs = append(errs, errors.New("history.db must be set when history is enabled"))
	}
	return errors.Join(errs...)
}

func (c Config) engineConfig(name, command string) engine.Config {
	return engine.Config{
		Name:         name,
		Command:      command,
		Nice:         c.Engines.Nice,
		SettleDelay:  c.Engines.Settle,
		IdleTimeout:  c.Engines.IdleTimeout,
		PollInterval: c.Engines.PollInterval,
	}
}
