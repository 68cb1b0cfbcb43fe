// Package logging provides structured logging for the provisioner.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across every phase of a batch.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device provisioned", "device", name, "status", "SUCCESS")
//
// # Security
//
// Never log provisioning secrets or full device tokens. Log a short
// prefix of a token at most.
package logging
