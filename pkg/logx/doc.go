// Package logx configures aether's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional feed sink for an attached UI (min-level + rate limiting)
package logx
