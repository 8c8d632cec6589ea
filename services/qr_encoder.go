package services

import (
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRCodeEncoder renders payloads as PNG QR codes.
type QRCodeEncoder struct {
	Level qrcode.RecoveryLevel
	Size  int
}

// NewQRCodeEncoder returns an encoder producing size x size PNGs at medium recovery.
func NewQRCodeEncoder(size int) *QRCodeEncoder {
	if size <= 0 {
		size = 256
	}
	return &QRCodeEncoder{Level: qrcode.Medium, Size: size}
}

// Encode generates the PNG bytes for payload.
func (e *QRCodeEncoder) Encode(payload string) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("empty qr payload")
	}

	qrCode, err := qrcode.New(payload, e.Level)
	if err != nil {
		return nil, fmt.Errorf("error generating QR code: %w", err)
	}

	qrPNG, err := qrCode.PNG(e.Size)
	if err != nil {
		return nil, fmt.Errorf("error converting QR code to PNG: %w", err)
	}
	return qrPNG, nil
}
