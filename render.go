package websnap

import (
	"fmt"
	"math"
)

// renderScreenshot captures the page as an image.
func (p *Pipeline) renderScreenshot(page PageHandle, req GenerationRequest) ([]byte, error) {
	data, err := page.Screenshot(*req.Screenshot)
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot: %v", ErrRender, err)
	}
	return data, nil
}

// renderPDF prints the page and estimates the resulting page count from
// the rendered document height.
func (p *Pipeline) renderPDF(page PageHandle, req GenerationRequest) ([]byte, int, error) {
	spec, formatHeightPx, err := p.buildPDFSpec(req.PDF)
	if err != nil {
		return nil, 0, err
	}

	data, err := page.PDF(spec)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: pdf: %v", ErrRender, err)
	}

	pages := 1
	if height, err := page.ContentHeight(); err == nil {
		pages = estimatePages(height, formatHeightPx)
	}
	return data, pages, nil
}

// buildPDFSpec translates validated PDF options into the engine's
// inch-based print request. Header and footer templates are sanitized
// with the strict template rules before they reach the engine, because
// templates render in a privileged frame outside the page sandbox.
func (p *Pipeline) buildPDFSpec(opts *PDFOptions) (PDFRenderSpec, int, error) {
	widthPx, heightPx, err := formatDimensions(opts.Format, opts.Landscape)
	if err != nil {
		return PDFRenderSpec{}, 0, err
	}

	var margins Margins
	if opts.Margins != nil {
		margins = *opts.Margins
	}
	topPx, err := parseLengthOr(margins.Top, 0)
	if err != nil {
		return PDFRenderSpec{}, 0, fmt.Errorf("%w: margin top: %v", ErrInvalidOptions, err)
	}
	bottomPx, err := parseLengthOr(margins.Bottom, 0)
	if err != nil {
		return PDFRenderSpec{}, 0, fmt.Errorf("%w: margin bottom: %v", ErrInvalidOptions, err)
	}
	leftPx, err := parseLengthOr(margins.Left, 0)
	if err != nil {
		return PDFRenderSpec{}, 0, fmt.Errorf("%w: margin left: %v", ErrInvalidOptions, err)
	}
	rightPx, err := parseLengthOr(margins.Right, 0)
	if err != nil {
		return PDFRenderSpec{}, 0, fmt.Errorf("%w: margin right: %v", ErrInvalidOptions, err)
	}

	return PDFRenderSpec{
		WidthIn:         pxToInches(widthPx),
		HeightIn:        pxToInches(heightPx),
		MarginTopIn:     pxToInches(topPx),
		MarginBottomIn:  pxToInches(bottomPx),
		MarginLeftIn:    pxToInches(leftPx),
		MarginRightIn:   pxToInches(rightPx),
		HeaderTemplate:  p.sanitizer.SanitizePDFTemplate(opts.HeaderTemplate),
		FooterTemplate:  p.sanitizer.SanitizePDFTemplate(opts.FooterTemplate),
		PageRanges:      opts.PageRanges,
		Scale:           opts.Scale,
		PrintBackground: opts.PrintBackground,
	}, heightPx, nil
}

// estimatePages divides the rendered height by the page height, rounding
// up, with a floor of one page.
func estimatePages(contentHeightPx float64, formatHeightPx int) int {
	if contentHeightPx <= 0 || formatHeightPx <= 0 {
		return 1
	}
	pages := int(math.Ceil(contentHeightPx / float64(formatHeightPx)))
	if pages < 1 {
		return 1
	}
	return pages
}
