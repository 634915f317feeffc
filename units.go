package websnap

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pixel conversion factors at 96 DPI.
const (
	pxPerInch = 96.0
	pxPerCm   = 37.8
	pxPerMm   = 3.78
)

// Named paper format constants.
const (
	FormatA3      = "a3"
	FormatA4      = "a4"
	FormatA5      = "a5"
	FormatLetter  = "letter"
	FormatLegal   = "legal"
	FormatTabloid = "tabloid"
)

// paperFormat holds portrait pixel dimensions at 96 DPI.
type paperFormat struct {
	widthPx  int
	heightPx int
}

// paperFormats maps lowercase format names to portrait dimensions.
// Landscape swaps width and height.
var paperFormats = map[string]paperFormat{
	FormatA3:      {1123, 1587},
	FormatA4:      {794, 1123},
	FormatA5:      {559, 794},
	FormatLetter:  {816, 1056},
	FormatLegal:   {816, 1344},
	FormatTabloid: {1056, 1632},
}

// lookupPaperFormat resolves a format name case-insensitively.
func lookupPaperFormat(name string) (paperFormat, bool) {
	f, ok := paperFormats[strings.ToLower(name)]
	return f, ok
}

// formatDimensions returns the pixel dimensions for a named format in the
// requested orientation.
func formatDimensions(name string, landscape bool) (width, height int, err error) {
	f, ok := lookupPaperFormat(name)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPaperFormat, name)
	}
	if landscape {
		return f.heightPx, f.widthPx, nil
	}
	return f.widthPx, f.heightPx, nil
}

// ParseLength converts a length string to rounded pixels.
// Supported units: px (default for bare numbers), in (x96), cm (x37.8),
// mm (x3.78).
func ParseLength(s string) (int, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidLength)
	}

	factor := 1.0
	num := trimmed
	switch {
	case strings.HasSuffix(trimmed, "px"):
		num = strings.TrimSuffix(trimmed, "px")
	case strings.HasSuffix(trimmed, "in"):
		num = strings.TrimSuffix(trimmed, "in")
		factor = pxPerInch
	case strings.HasSuffix(trimmed, "cm"):
		num = strings.TrimSuffix(trimmed, "cm")
		factor = pxPerCm
	case strings.HasSuffix(trimmed, "mm"):
		num = strings.TrimSuffix(trimmed, "mm")
		factor = pxPerMm
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLength, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative length %q", ErrInvalidLength, s)
	}
	return int(math.Round(v * factor)), nil
}

// parseLengthOr parses s, falling back to def when s is empty.
func parseLengthOr(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return ParseLength(s)
}

// pxToInches converts pixels to inches for the CDP print API.
func pxToInches(px int) float64 {
	return float64(px) / pxPerInch
}
