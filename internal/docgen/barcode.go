package docgen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"stockflow/backend/internal/domain"
)

var ErrNoBarcode = errors.New("product has no barcode value")

const (
	labelWidth    = 300
	barcodeHeight = 80
	captionHeight = 34
)

// BarcodeLabel renders a printable Code128 label: the product name on
// top, the bars, and the encoded value underneath. Falls back to the
// product id when no barcode value is set.
func BarcodeLabel(p domain.Product) ([]byte, error) {
	value := p.Barcode
	if value == "" {
		value = p.ID
	}
	if value == "" {
		return nil, ErrNoBarcode
	}

	code, err := code128.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("encode barcode: %w", err)
	}
	scaled, err := barcode.Scale(code, labelWidth-20, barcodeHeight)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}

	label := image.NewRGBA(image.Rect(0, 0, labelWidth, barcodeHeight+captionHeight+20))
	draw.Draw(label, label.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(label, scaled.Bounds().Add(image.Pt(10, 16)), scaled, image.Point{}, draw.Src)

	drawCentered(label, p.Name, 12)
	drawCentered(label, value, barcodeHeight+30)

	var buf bytes.Buffer
	if err := png.Encode(&buf, label); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawCentered(dst *image.RGBA, text string, y int) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	x := (dst.Bounds().Dx() - width) / 2
	if x < 0 {
		x = 0
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
