/*
Copyright 2024 SuiteSync Authors.

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

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/suitesync/suitesync"
	"github.com/suitesync/suitesync/config"
	"github.com/suitesync/suitesync/database"
	"github.com/suitesync/suitesync/internal/notification"
)

// SuiteSyncCLI encapsulates the root Cobra command.
type SuiteSyncCLI struct {
	cmd *cobra.Command
}

// syncInstance holds the engine instance and its configuration for the
// lifetime of a command.
type syncInstance struct {
	sync *suitesync.SuiteSync
	cnf  *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and boots the engine before any command runs.
func preRun(app *syncInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("suitesync.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newSync, err := setupSuiteSync(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.sync = newSync
		app.cnf = cnf

		return nil
	}
}

func setupSuiteSync(cfg *config.Configuration) (*suitesync.SuiteSync, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newSync, err := suitesync.NewSuiteSync(db)
	if err != nil {
		return nil, fmt.Errorf("error creating suitesync: %v", err)
	}
	return newSync, nil
}

// NewCLI creates the command-line interface for SuiteSync.
func NewCLI() *SuiteSyncCLI {
	var configFile string
	b := &syncInstance{}

	var rootCmd = &cobra.Command{
		Use:   "suitesync",
		Short: "SmartSuite to Webflow sync engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./suitesync.json", "Configuration file for suitesync")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(ingestCommands(b))

	return &SuiteSyncCLI{cmd: rootCmd}
}

func (w SuiteSyncCLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
