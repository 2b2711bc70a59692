// Package log provides structured protocol capture for the Thread engine.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (radio, mesh, socket, service).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure capture by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For field debugging: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/thread/device.tlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Radio: 802.15.4 frames and link frames (FrameEvent)
//   - Socket: UDP datagrams (DatagramEvent)
//   - Mesh and Service: role and SRP state changes (StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Capture files use CBOR encoding with the .tlog extension. The thread-log
// CLI tool provides viewing, filtering, and statistics.
package log
