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
	"context"
	"log"

	"github.com/spf13/cobra"
)

// ingestCommands runs a single scheduler batch and exits. Intended for
// external cron setups that prefer a process over the HTTP trigger.
func ingestCommands(b *syncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "process one batch of due sync events",
		Run: func(cmd *cobra.Command, args []string) {
			result, err := b.sync.RunIngestBatch(context.Background())
			if err != nil {
				log.Fatal(err)
			}
			log.Printf(" [*] Batch complete: processed=%d succeeded=%d failed=%d depth=%d in %dms",
				result.Processed, result.Succeeded, result.Failed, result.QueueDepth, result.DurationMs)
		},
	}
	return cmd
}
