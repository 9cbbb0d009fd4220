// Package qr renders payment URIs as inline PNG data URLs.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// DataURL encodes content as a PNG QR code wrapped in a
// data:image/png;base64 URL suitable for direct embedding.
func DataURL(content string) (string, error) {
	return DataURLSized(content, defaultSize)
}

// DataURLSized is DataURL with an explicit pixel size.
func DataURLSized(content string, size int) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty qr content")
	}
	if size <= 0 {
		size = defaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
