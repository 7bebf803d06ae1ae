// Package qr renders raw pairing codes into scannable images. The
// provisioning API sometimes returns only the raw code and leaves image
// rendering to the client.
package qr

import (
	"encoding/base64"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const pngSize = 256

// DataURI renders a raw pairing code as a PNG data URI suitable for an
// <img> tag.
func DataURI(rawCode string) (string, error) {
	if rawCode == "" {
		return "", fmt.Errorf("empty pairing code")
	}
	png, err := qrcode.Encode(rawCode, qrcode.Medium, pngSize)
	if err != nil {
		return "", fmt.Errorf("encode pairing code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// IsDataURI reports whether s already carries an inline image.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}

// Terminal renders a raw pairing code as ASCII blocks for CLI display.
func Terminal(rawCode string) (string, error) {
	q, err := qrcode.New(rawCode, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode pairing code: %w", err)
	}
	return q.ToSmallString(false), nil
}
