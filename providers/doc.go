// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package providers contains the back-end search adapters. Each
// adapter wraps one external API behind the orchestrator.Searcher
// interface and maps HTTP failures onto the shared error taxonomy.
package providers
