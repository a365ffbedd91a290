// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package memory provides in-memory implementations of the auth repositories.
// They back the "memory" store setting and the package tests; data does not
// survive a restart.
package memory
