// Package ir provides the value and record types shared by every tally package.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in payloads - use int64 for numbers
//   - Payload strings are NFC normalized before they are stored
//   - Record ids and timestamps are uint64; ids come from a per-stream counter
//   - All JSON tags use snake_case
package ir
