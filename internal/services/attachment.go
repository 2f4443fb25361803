package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"

	// Register the WEBP decoder; imaging pulls in JPEG/PNG/GIF itself.
	_ "golang.org/x/image/webp"
)

// ImageTransformer is the abstract image transform capability the message
// path depends on. Tests substitute it without touching a real codec.
type ImageTransformer interface {
	Process(raw string) (string, error)
}

var allowedFormats = map[string]string{
	"jpeg": "JPEG",
	"png":  "PNG",
	"gif":  "GIF",
	"webp": "WEBP",
}

// ImagePipeline decodes, validates and re-encodes inbound image payloads.
// Input and output are base64 data URLs.
type ImagePipeline struct {
	maxBytes int
	maxDim   int
	quality  int
}

func NewImagePipeline(maxBytes, maxDim, quality int) *ImagePipeline {
	return &ImagePipeline{maxBytes: maxBytes, maxDim: maxDim, quality: quality}
}

// Process runs the full pipeline. Any failure short-circuits with an
// AttachmentError; nothing partially processed ever reaches a room log.
func (p *ImagePipeline) Process(raw string) (string, error) {
	payload := raw
	if i := strings.Index(payload, ","); i >= 0 {
		payload = payload[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", newAttachmentError("Invalid image: " + err.Error())
	}

	if len(data) > p.maxBytes {
		return "", newAttachmentError(fmt.Sprintf("Image size too large (max %dMB)", p.maxBytes/(1024*1024)))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", newAttachmentError("Invalid image: " + err.Error())
	}
	if _, ok := allowedFormats[format]; !ok {
		return "", newAttachmentError(fmt.Sprintf(
			"Unsupported image format: %s. Allowed: JPEG, PNG, GIF, WEBP", strings.ToUpper(format)))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warnf("Image decode failed after config sniff: %v", err)
		return "", newAttachmentError("Invalid image: " + err.Error())
	}

	if cfg.Width > p.maxDim || cfg.Height > p.maxDim {
		img = imaging.Fit(img, p.maxDim, p.maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	outFormat := format
	switch format {
	case "jpeg", "webp":
		// Lossy output. WEBP is re-encoded as JPEG since Go has no pure
		// webp encoder. Alpha and paletted modes are flattened onto white
		// before lossy compression.
		outFormat = "jpeg"
		err = imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(p.quality))
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case "gif":
		err = imaging.Encode(&buf, img, imaging.GIF)
	}
	if err != nil {
		log.Warnf("Image re-encode failed: %v", err)
		return "", newAttachmentError("Invalid image: " + err.Error())
	}

	return "data:image/" + outFormat + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// flatten draws an image onto a solid white background, collapsing any alpha
// channel to a truecolor mode suitable for lossy encoding.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.OverlayCenter(bg, img, 1.0)
}
