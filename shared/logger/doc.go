// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package logger provides structured JSON logging for omnisearch services.
//
// Every entry carries the component name, the container hostname and an
// optional request ID so log lines from concurrent searches can be
// correlated after the fact.
package logger
