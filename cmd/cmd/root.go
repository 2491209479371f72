// Copyright 2026 Anaphor Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/anaphorlab/anaphor"
)

// Version is set by main from the goreleaser ldflags.
var Version = "dev"

var (
	cfgFile   string
	modelsDir string
)

var rootCmd = &cobra.Command{
	Use:     "anaphor",
	Short:   "Anaphor coreference resolution service",
	Long:    `Anaphor resolves coreference clusters in tokenized documents and ranks candidate responses.`,
	Version: Version,
}

// Execute runs the root command and exits on error.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ~/.anaphor/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelsDir, "models-dir", "",
		"directory holding downloaded ranker models (default ~/.anaphor/models)")
	rootCmd.PersistentFlags().String("api-url", "http://localhost:4300",
		"address the HTTP API binds to")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-style", "json",
		"log style (json, console)")

	mustBindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	mustBindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log.style", rootCmd.PersistentFlags().Lookup("log-style"))
}

// mustBindPFlag binds a viper key to a cobra flag and panics on failure.
// Binding only fails on programmer error (nil or unknown flag).
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %q: %v", key, err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".anaphor"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("ANAPHOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	if modelsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			modelsDir = filepath.Join(home, ".anaphor", "models")
		}
	}
}

// loadConfig unmarshals the merged viper state into the service config.
func loadConfig() (anaphor.Config, error) {
	var cfg anaphor.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the log.level and log.style
// settings.
func newLogger() *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if viper.GetString("log.style") == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(viper.GetString("log.level")); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zap.Must(zapCfg.Build())
}
