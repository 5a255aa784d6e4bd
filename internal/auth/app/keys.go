package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
)

// initSigningKey loads the Ed25519 signing key from cfg.SigningKeyFile, or
// generates one when no file is configured or the file does not exist yet. A
// generated key is written back to the configured path so restarts keep the
// same key; with no path at all the key is ephemeral and issued tokens do
// not survive a restart.
func initSigningKey(cfg Config, logger *slog.Logger) (*jwtx.EdDSASigner, error) {
	if cfg.SigningKeyFile != "" {
		pem, err := os.ReadFile(cfg.SigningKeyFile)
		switch {
		case err == nil:
			return jwtx.NewSignerEdDSA(cfg.SigningKeyID, pem)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read signing key: %w", err)
		}
	}

	pem, err := jwtx.GenerateEdDSAKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	if cfg.SigningKeyFile != "" {
		if err := os.WriteFile(cfg.SigningKeyFile, pem, 0600); err != nil {
			return nil, fmt.Errorf("failed to persist signing key: %w", err)
		}
		logger.Info("generated new signing key", "path", cfg.SigningKeyFile, "kid", cfg.SigningKeyID)
	} else {
		logger.Warn("using ephemeral signing key; tokens will not survive a restart")
	}

	return jwtx.NewSignerEdDSA(cfg.SigningKeyID, pem)
}
