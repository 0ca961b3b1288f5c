// Package qrshare renders share-link QR codes as PNG.  It wraps
// github.com/skip2/go-qrcode with the gallery's palette and a sensible
// default size so handlers stay one-liners.
package qrshare

import (
	"fmt"
	"image/color"
	"io"

	qrcode "github.com/skip2/go-qrcode"
)

// Options controls rendering.  Zero values pick the defaults below.
type Options struct {
	SizePx int        // output edge length in pixels
	Fg     color.RGBA // module color
	Bg     color.RGBA // background, including the quiet zone
}

const defaultSizePx = 512

// EncodePNG writes a QR code for the given URL.  Medium error correction is
// plenty for a plain code without a logo overlay and keeps the module grid
// small enough to scan from another phone's screen.
func EncodePNG(w io.Writer, url string, opt Options) error {
	if url == "" {
		return fmt.Errorf("empty url")
	}
	if opt.SizePx <= 0 {
		opt.SizePx = defaultSizePx
	}
	if opt.Fg == (color.RGBA{}) {
		opt.Fg = color.RGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff}
	}
	if opt.Bg == (color.RGBA{}) {
		opt.Bg = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}

	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("build qr: %w", err)
	}
	code.ForegroundColor = opt.Fg
	code.BackgroundColor = opt.Bg

	png, err := code.PNG(opt.SizePx)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}
	_, err = w.Write(png)
	return err
}
