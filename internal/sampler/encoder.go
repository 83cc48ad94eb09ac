package sampler

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
)

// Payload is one encoded still frame.
type Payload struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// DataURL renders the payload as a data URL, the form the verification
// service expects in its image field.
func (p Payload) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Encoder turns a frame into a transportable payload.
type Encoder interface {
	Encode(img image.Image) (Payload, error)
}

// JPEGEncoder encodes frames at their native resolution.
type JPEGEncoder struct {
	Quality int
}

func (e JPEGEncoder) Encode(img image.Image) (Payload, error) {
	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Payload{}, fmt.Errorf("encoding jpeg: %w", err)
	}

	bounds := img.Bounds()
	return Payload{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}
