// Copyright 2025 Certen Protocol
//
// Package ledger implements the per-task stake commitment ledger,
// using explicit sentinel errors instead of returning nil on a miss.
package ledger

import "errors"

// ErrCommitmentNotFound is returned when an operation references a
// taskPda with no commitment on record.
var ErrCommitmentNotFound = errors.New("ledger: commitment not found")
