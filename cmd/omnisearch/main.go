// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"log"

	"axonflow/omnisearch/orchestrator"
	"axonflow/omnisearch/providers"
)

func main() {
	registry := orchestrator.NewRegistry()
	if err := providers.RegisterFromEnv(registry); err != nil {
		log.Fatalf("provider registration failed: %v", err)
	}

	if err := orchestrator.Run(registry); err != nil {
		log.Fatalf("omnisearch exited: %v", err)
	}
}
