package main

import (
	"context"
	"errors"
	"os"

	websnap "github.com/alnah/go-websnap"
	"github.com/alnah/go-websnap/internal/config"
)

// Exit codes for the websnap CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess     = 0 // Successful render
	ExitGeneral     = 1 // General/unexpected error
	ExitUsage       = 2 // Invalid flags, config, or validation
	ExitIO          = 3 // File not found, permission denied
	ExitBrowser     = 4 // Browser/pool errors
	ExitBlocked     = 5 // URL rejected by SSRF policy
	ExitInterrupted = 130
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}

	if errors.Is(err, websnap.ErrSSRFBlocked) {
		return ExitBlocked
	}

	// Browser and pool errors (exit 4)
	if errors.Is(err, websnap.ErrBrowserLaunch) ||
		errors.Is(err, websnap.ErrContextCreate) ||
		errors.Is(err, websnap.ErrPoolExhausted) ||
		errors.Is(err, websnap.ErrPoolClosed) ||
		errors.Is(err, websnap.ErrNavigation) ||
		errors.Is(err, websnap.ErrRender) ||
		errors.Is(err, websnap.ErrGeneration) ||
		errors.Is(err, websnap.ErrPageConfiguration) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrNoInput) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, websnap.ErrInvalidOptions) ||
		errors.Is(err, websnap.ErrInvalidURL) ||
		errors.Is(err, websnap.ErrInvalidLength) ||
		errors.Is(err, websnap.ErrInvalidPaperFormat) ||
		errors.Is(err, websnap.ErrInvalidWaitUntil) ||
		errors.Is(err, websnap.ErrInvalidImageFormat) ||
		errors.Is(err, websnap.ErrInvalidPoolConfig) ||
		errors.Is(err, ErrInvalidHeader) ||
		errors.Is(err, ErrInvalidTimeout) {
		return ExitUsage
	}

	return ExitGeneral
}
