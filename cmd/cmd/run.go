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
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anaphorlab/anaphor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the anaphor server",
	Long:  `Start the anaphor server for coreference resolution and response ranking.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("char-vocab", "", "character vocabulary file, one character per line")
	mustBindPFlag("char_vocab", runCmd.Flags().Lookup("char-vocab"))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Running as anaphor")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	readyC := make(chan struct{})
	go func() {
		<-readyC
		logger.Info("Anaphor is ready")
	}()

	anaphor.RunAsAnaphor(ctx, logger, cfg, readyC)
	return nil
}
