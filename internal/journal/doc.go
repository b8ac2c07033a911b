package journal

// Package journal provides a minimal persistence layer used by the dispatcher.
//
// It currently supports:
//   - Dispatch log appends (one record per completed send)
//   - Recent-history reads (to survive restarts and feed status views)
