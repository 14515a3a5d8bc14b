package intent

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// Renderer turns a canonical payment string into an image reference.
type Renderer interface {
	Render(ctx context.Context, payload string) (string, error)
}

// QRRenderer encodes payloads as PNG QR codes returned as data URIs.
type QRRenderer struct {
	size int
}

// NewQRRenderer builds a renderer producing size x size pixel images.
func NewQRRenderer(size int) *QRRenderer {
	if size <= 0 {
		size = 256
	}
	return &QRRenderer{size: size}
}

func (r *QRRenderer) Render(ctx context.Context, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("create qr code: %w", err)
	}
	png, err := qr.PNG(r.size)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
