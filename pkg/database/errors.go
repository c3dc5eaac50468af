// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for job-history operations.

package database

import "errors"

// ErrNotFound is returned when a requested job-history record is not found.
var ErrNotFound = errors.New("entity not found")
