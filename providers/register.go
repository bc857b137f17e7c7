// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package providers

import (
	"log"
	"os"

	"axonflow/omnisearch/orchestrator"
)

// RegisterFromEnv registers every adapter whose API key is present in
// the environment. Providers without keys are skipped with a log line;
// a key alone decides availability at startup.
func RegisterFromEnv(registry *orchestrator.Registry) error {
	type candidate struct {
		envKey   string
		category orchestrator.Category
		build    func(key string) orchestrator.Searcher
	}

	candidates := []candidate{
		{"TAVILY_API_KEY", orchestrator.CategorySearch, func(key string) orchestrator.Searcher {
			return NewTavily(key, "")
		}},
		{"BRAVE_API_KEY", orchestrator.CategorySearch, func(key string) orchestrator.Searcher {
			return NewBrave(key, "")
		}},
		{"KAGI_API_KEY", orchestrator.CategorySearch, func(key string) orchestrator.Searcher {
			return NewKagi(key, "")
		}},
		{"EXA_API_KEY", orchestrator.CategorySearch, func(key string) orchestrator.Searcher {
			return NewExa(key, "")
		}},
		{"PERPLEXITY_API_KEY", orchestrator.CategoryAIResponse, func(key string) orchestrator.Searcher {
			return NewPerplexity(key, "")
		}},
		{"KAGI_API_KEY", orchestrator.CategoryAIResponse, func(key string) orchestrator.Searcher {
			return NewKagiFastGPT(key, "")
		}},
	}

	for _, c := range candidates {
		key := os.Getenv(c.envKey)
		if key == "" {
			log.Printf("[PROVIDERS] %s not set, skipping", c.envKey)
			continue
		}
		s := c.build(key)
		if err := registry.Register(s, c.category); err != nil {
			return err
		}
		log.Printf("[PROVIDERS] registered %s (%s)", s.Name(), c.category)
	}

	if registry.Count() == 0 {
		log.Println("[PROVIDERS] WARNING: no API keys configured, no providers registered")
	}
	return nil
}
