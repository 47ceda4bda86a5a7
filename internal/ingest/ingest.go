// Package ingest converts a user-supplied photo file into the in-memory image
// handle the session layer stores.
//
// Every ingest path applies the same validation: the declared media type (when
// one is present) must be an image type, the payload is size-capped, and the
// sniffed content must look like an image. Metadata extraction uses
// evanoberholster/imagemeta and is best effort; a photo without EXIF is still
// a valid photo.
package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// MaxUploadBytes caps the size of an ingested photo.
const MaxUploadBytes = 25 << 20

// PreviewMaxDimension is the maximum dimension (width or height) of the
// browser preview rendition.
const PreviewMaxDimension = 1600

// SupportedImageExtensions defines the file extensions accepted by the
// file-path ingest path, mapped to their declared MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// UnreadableFileError reports that a file could not be turned into an image
// handle. The message is shown to the user verbatim.
type UnreadableFileError struct {
	Reason string
	Err    error
}

func (e *UnreadableFileError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}

// Meta is the EXIF summary extracted from an ingested photo.
type Meta struct {
	CameraMake  string
	CameraModel string
	DateTaken   time.Time
	HasDate     bool
	HasGPS      bool
}

// Image is the opaque in-memory handle for a loaded photo. The session layer
// stores it without interpreting it; the rendering layer serves Preview.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte

	// Preview is the browser rendition: a downscaled JPEG for oversized
	// JPEG/PNG photos, the original bytes otherwise.
	Preview         []byte
	PreviewMIMEType string

	// Meta is nil when EXIF extraction failed or found nothing useful.
	Meta *Meta
}

// Load reads a photo from r and produces an Image handle.
// declaredType is the media type claimed by the upload or picker. Type-unaware
// clients declare application/octet-stream (or nothing at all); those generic
// declarations carry no information, so only the payload sniff applies to
// them. A concrete non-image declaration is rejected before reading.
func Load(name, declaredType string, r io.Reader) (*Image, error) {
	if mt, _, err := mime.ParseMediaType(declaredType); err == nil && mt != "application/octet-stream" {
		if !strings.HasPrefix(mt, "image/") {
			return nil, &UnreadableFileError{Reason: fmt.Sprintf("%s is not an image (declared type %q)", name, declaredType)}
		}
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, &UnreadableFileError{Reason: fmt.Sprintf("could not read %s", name), Err: err}
	}
	if len(data) == 0 {
		return nil, &UnreadableFileError{Reason: fmt.Sprintf("%s is empty", name)}
	}
	if len(data) > MaxUploadBytes {
		return nil, &UnreadableFileError{Reason: fmt.Sprintf("%s exceeds the %d MB upload limit", name, MaxUploadBytes>>20)}
	}

	sniffed := http.DetectContentType(data)
	if !strings.HasPrefix(sniffed, "image/") {
		return nil, &UnreadableFileError{Reason: fmt.Sprintf("%s does not contain image data (detected %s)", name, sniffed)}
	}

	img := &Image{
		Name:            name,
		MIMEType:        sniffed,
		Data:            data,
		Preview:         data,
		PreviewMIMEType: sniffed,
		Meta:            extractMeta(name, data),
	}

	if preview, err := buildPreview(data, sniffed); err != nil {
		// Preview failure is not fatal; the browser gets the original bytes.
		log.Warn().Err(err).Str("file", name).Msg("Preview generation failed, serving original")
	} else if preview != nil {
		img.Preview = preview
		img.PreviewMIMEType = "image/jpeg"
	}

	log.Debug().
		Str("file", name).
		Str("mime_type", sniffed).
		Int("bytes", len(data)).
		Bool("has_meta", img.Meta != nil).
		Msg("Photo ingested")

	return img, nil
}

// LoadFile ingests a photo from a filesystem path (the native-picker path).
// The declared type comes from the file extension, so an unsupported
// extension is rejected before the file is read.
func LoadFile(path string) (*Image, error) {
	ext := strings.ToLower(filepath.Ext(path))
	declaredType, ok := SupportedImageExtensions[ext]
	if !ok {
		return nil, &UnreadableFileError{Reason: fmt.Sprintf("%s is not a supported image type", filepath.Base(path))}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &UnreadableFileError{Reason: fmt.Sprintf("could not open %s", filepath.Base(path)), Err: err}
	}
	defer f.Close()

	return Load(filepath.Base(path), declaredType, f)
}

// extractMeta pulls an EXIF summary out of the photo bytes. Best effort: any
// failure returns nil rather than an error.
func extractMeta(name string, data []byte) *Meta {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("file", name).Msg("No EXIF metadata extracted")
		return nil
	}

	meta := &Meta{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		meta.HasGPS = true
	}

	// Priority: DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		meta.DateTaken = exifData.DateTimeOriginal()
		meta.HasDate = true
	case !exifData.CreateDate().IsZero():
		meta.DateTaken = exifData.CreateDate()
		meta.HasDate = true
	case !exifData.ModifyDate().IsZero():
		meta.DateTaken = exifData.ModifyDate()
		meta.HasDate = true
	}

	if meta.CameraMake == "" && meta.CameraModel == "" && !meta.HasGPS && !meta.HasDate {
		return nil
	}
	return meta
}

// buildPreview downscales oversized JPEG/PNG photos for the browser.
// Returns nil bytes (and nil error) when the original should be served as-is.
func buildPreview(data []byte, mimeType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	switch mimeType {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	default:
		// GIF/WebP/HEIC renditions are served unmodified.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()
	if origWidth <= PreviewMaxDimension && origHeight <= PreviewMaxDimension {
		return nil, nil
	}

	newWidth, newHeight := scaleDimensions(origWidth, origHeight, PreviewMaxDimension)

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	log.Debug().
		Int("orig_width", origWidth).
		Int("orig_height", origHeight).
		Int("new_width", newWidth).
		Int("new_height", newHeight).
		Int("output_size", buf.Len()).
		Msg("Preview rendition generated")

	return buf.Bytes(), nil
}

// scaleDimensions fits width x height inside maxDimension preserving aspect
// ratio. Either output dimension is at least 1.
func scaleDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxDimension
		newHeight = int(float64(height) * float64(maxDimension) / float64(width))
	} else {
		newHeight = maxDimension
		newWidth = int(float64(width) * float64(maxDimension) / float64(height))
	}

	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return newWidth, newHeight
}
