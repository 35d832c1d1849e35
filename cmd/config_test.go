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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/rephraser/internal"
	"github.com/valpere/rephraser/internal/cache"
	"github.com/valpere/rephraser/internal/engine"
	"github.com/valpere/rephraser/internal/pivot"
	"github.com/valpere/rephraser/internal/ranker"
)

func TestLoadConfig_Defaults(t *testing.T) {
	c, err := loadConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, defaultEngineCommands["forward"], c.Engines.Forward.Command)
	assert.Equal(t, defaultEngineCommands["backward"], c.Engines.Backward.Command)
	assert.Equal(t, defaultEngineCommands["lm"], c.Engines.LM.Command)
	assert.Equal(t, engine.DefaultNice, c.Engines.Nice)
	assert.Equal(t, engine.DefaultIdleTimeout, c.Engines.IdleTimeout)
	assert.Equal(t, cache.DefaultSize, c.Cache.Size)
	assert.Equal(t, pivot.DefaultConfig(), c.Pipeline)
	assert.Equal(t, ranker.DefaultTopN, c.Ranker.TopN)
	assert.Equal(t, 4, c.Context.Window)
	assert.True(t, c.History.Enabled)
	assert.Equal(t, "en", c.Language.Source)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rephraser.yaml")
	yaml := `engines:
  forward:
    command: "fwd"
  lm:
    command: "lm-query"
  idle_timeout: 10m
cache:
  size: 5
pipeline:
  full_span_keep: 3
history:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	c, err := loadConfig(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "fwd", c.Engines.Forward.Command)
	assert.Equal(t, defaultEngineCommands["backward"], c.Engines.Backward.Command)
	assert.Equal(t, "lm-query", c.Engines.LM.Command)
	assert.Equal(t, 10*time.Minute, c.Engines.IdleTimeout)
	assert.Equal(t, 5, c.Cache.Size)
	assert.Equal(t, 3, c.Pipeline.FullSpanKeep)
	assert.Equal(t, pivot.DefaultPartialSpanKeep, c.Pipeline.PartialSpanKeep)
	assert.False(t, c.History.Enabled)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("REPHRASER_CACHE_SIZE", "42")
	t.Setenv("REPHRASER_ENGINES_LM_COMMAND", "cat")

	c, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 42, c.Cache.Size)
	assert.Equal(t, "cat", c.Engines.LM.Command)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	c, err := loadConfig(viper.New(), "")
	require.NoError(t, err)

	bad := c
	bad.Cache.Size = 0
	bad.Engines.Backward.Command = "  "
	err = bad.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.size")
	assert.Contains(t, err.Error(), "engines.backward.command")

	bad = c
	bad.Engines.Settle = -time.Second
	err = bad.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engines.settle")

	bad = c
	bad.Engines.Settle = 0
	assert.NoError(t, bad.validate())

	bad = c
	bad.History.DB = ""
	assert.Error(t, bad.validate())

	bad.History.Enabled = false
	assert.NoError(t, bad.validate())
}

func TestConfig_EngineConfig(t *testing.T) {
	c, err := loadConfig(viper.New(), "")
	require.NoError(t, err)

	ec := c.engineConfig("lm", "query lm.bin")
	assert.Equal(t, "lm", ec.Name)
	assert.Equal(t, "query lm.bin", ec.Command)
	assert.Equal(t, c.Engines.Settle, ec.SettleDelay)
	assert.Equal(t, c.Engines.PollInterval, ec.PollInterval)
}

func TestPrintResults(t *testing.T) {
	oldTop, oldJSON := rephraseTop, jsonOutput
	t.Cleanup(func() { rephraseTop, jsonOutput = oldTop, oldJSON })

	results := []internal.Paraphrase{
		{Text: "example", Score: -1.3},
		{Text: "an instance", Score: -2.5},
		{Text: "a sample", Score: -3},
	}

	t.Run("table", func(t *testing.T) {
		rephraseTop, jsonOutput = 2, false
		var buf bytes.Buffer
		require.NoError(t, printResults(&buf, results))
		out := buf.String()
		assert.Contains(t, out, "RANK")
		assert.Contains(t, out, "-1.3000")
		assert.Contains(t, out, "an instance")
		assert.NotContains(t, out, "a sample")
	})

	t.Run("json", func(t *testing.T) {
		rephraseTop, jsonOutput = 0, true
		var buf bytes.Buffer
		require.NoError(t, printResults(&buf, results))
		var got []internal.Paraphrase
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, results, got)
	})

	t.Run("empty json", func(t *testing.T) {
		rephraseTop, jsonOutput = 0, true
		var buf bytes.Buffer
		require.NoError(t, printResults(&buf, nil))
		assert.Equal(t, "[]\n", buf.String())
	})

	t.Run("empty table", func(t *testing.T) {
		rephraseTop, jsonOutput = 0, false
		var buf bytes.Buffer
		require.NoError(t, printResults(&buf, nil))
		assert.Contains(t, buf.String(), "No paraphrases found.")
	})
}
