package imagepkg

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is used when a caller asks for quality 0.
const DefaultJPEGQuality = 100

// EncodePNG writes img losslessly.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// EncodeJPEG writes img at the given quality (1-100).
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

// EncodeFor picks the format from filename's extension (png, jpg, gif, tif,
// bmp).
func EncodeFor(w io.Writer, img image.Image, filename string, quality int) error {
	format, err := imaging.FormatFromFilename(filename)
	if err != nil {
		return err
	}
	if format == imaging.JPEG {
		return EncodeJPEG(w, img, quality)
	}
	return imaging.Encode(w, img, format)
}
