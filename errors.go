package websnap

import "errors"

// Sentinel errors for library operations.
var (
	// Request validation errors.
	ErrInvalidOptions = errors.New("invalid generation options")
	ErrInvalidURL     = errors.New("invalid url")
	ErrSSRFBlocked    = errors.New("url blocked by ssrf policy")

	// Pool errors.
	ErrPoolExhausted = errors.New("browser pool exhausted")
	ErrPoolClosed    = errors.New("browser pool is shut down")
	ErrUnknownLease  = errors.New("unknown or already released lease")
	ErrBrowserLaunch = errors.New("failed to launch browser")
	ErrContextCreate = errors.New("failed to create browser context")

	// Pipeline errors.
	ErrPageConfiguration = errors.New("page configuration failed")
	ErrNavigation        = errors.New("navigation failed")
	ErrRender            = errors.New("render failed")
	ErrGeneration        = errors.New("generation failed")

	// Option field validation errors.
	ErrInvalidLength      = errors.New("invalid length value")
	ErrInvalidPaperFormat = errors.New("invalid paper format")
	ErrInvalidWaitUntil   = errors.New("invalid wait condition")
	ErrInvalidImageFormat = errors.New("invalid image format")
	ErrInvalidPoolConfig  = errors.New("invalid pool configuration")
)
