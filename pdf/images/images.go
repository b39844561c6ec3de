// Package images decodes signature bitmaps and turns them into PDF image
// XObjects.
package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/georgepadayatti/pdfflatten/pdf/filters"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// Common errors
var (
	ErrInvalidImage      = errors.New("invalid image data")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrDecodeFailed      = errors.New("image decode failed")
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	ErrInvalidDataURL    = errors.New("invalid data URL")
	ErrImageTooLarge     = fmt.Errorf("%w: image too large", ErrInvalidDimensions)
)

// DefaultMaxDecodePixels is the largest bitmap area Decode accepts when
// no limit is given.
const DefaultMaxDecodePixels = 25_000_000

// ColorSpace represents a PDF color space.
type ColorSpace string

const (
	ColorSpaceGray ColorSpace = "DeviceGray"
	ColorSpaceRGB  ColorSpace = "DeviceRGB"
)

// ImageFormat represents an image format.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "PNG"
	FormatJPEG ImageFormat = "JPEG"
	FormatGIF  ImageFormat = "GIF"
	FormatBMP  ImageFormat = "BMP"
	FormatWebP ImageFormat = "WebP"
)

// PDFImage is an opaque 8 bit image ready for embedding.
type PDFImage struct {
	Width      int
	Height     int
	ColorSpace ColorSpace
	// Pixels holds the uncompressed samples, row by row.
	Pixels []byte
	// Format of the source bitmap, if it came from encoded bytes.
	Format ImageFormat
	// SourceWidth and SourceHeight are the bitmap's size before
	// downsampling.
	SourceWidth  int
	SourceHeight int
}

// DetectFormat detects the image format from the file header.
func DetectFormat(data []byte) ImageFormat {
	switch {
	case len(data) < 8:
		return ""
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case data[0] == 'B' && data[1] == 'M':
		return FormatBMP
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	}
	return ""
}

// DecodeDataURL returns the payload of a base64 data URL such as the
// ones a canvas produces ("data:image/png;base64,...").
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, ErrInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURL)
	}
	return data, nil
}

// Decode decodes an encoded bitmap in any of the supported formats. The
// header is read first and bitmaps of more than maxPixels pixels are
// rejected before their pixels are allocated. maxPixels <= 0 means
// DefaultMaxDecodePixels.
func Decode(data []byte, maxPixels int) (image.Image, ImageFormat, error) {
	if len(data) == 0 {
		return nil, "", ErrInvalidImage
	}
	format := DetectFormat(data)
	if format == "" {
		return nil, "", ErrUnsupportedFormat
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if err := checkSize(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, format, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, format, ErrInvalidDimensions
	}
	return img, format, nil
}

func checkSize(w, h, maxPixels int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxDecodePixels
	}
	if int64(w)*int64(h) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, w, h, maxPixels)
	}
	return nil
}

// FlattenOnWhite composites img over an opaque white background.
func FlattenOnWhite(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Downsample scales img so that neither side exceeds maxSide pixels,
// keeping its aspect ratio. Smaller images and maxSide <= 0 leave img
// unchanged.
func Downsample(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}
	nw, nh := maxSide, maxSide
	if w >= h {
		nh = max(1, h*maxSide/w)
	} else {
		nw = max(1, w*maxSide/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// NewPDFImageFromImage samples an opaque image. Gray source models stay
// gray; everything else becomes RGB. Alpha is ignored, so callers
// composite first.
func NewPDFImageFromImage(img image.Image) (*PDFImage, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrInvalidDimensions
	}
	out := &PDFImage{Width: b.Dx(), Height: b.Dy(), ColorSpace: ColorSpaceRGB}

	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		out.ColorSpace = ColorSpaceGray
		out.Pixels = make([]byte, 0, out.Width*out.Height)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.Pixels = append(out.Pixels, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			}
		}
		return out, nil
	}

	out.Pixels = make([]byte, 0, 3*out.Width*out.Height)
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < out.Height; y++ {
			row := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride:]
			for x := 0; x < out.Width; x++ {
				i := 4 * (x + b.Min.X - rgba.Rect.Min.X)
				out.Pixels = append(out.Pixels, row[i], row[i+1], row[i+2])
			}
		}
		return out, nil
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out.Pixels = append(out.Pixels, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return out, nil
}

// Prepare decodes a signature bitmap of at most maxPixels pixels,
// composites it over white and downsamples it to maxSide.
func Prepare(data []byte, maxSide, maxPixels int) (*PDFImage, error) {
	img, format, err := Decode(data, maxPixels)
	if err != nil {
		return nil, err
	}
	pdfImg, err := NewPDFImageFromImage(Downsample(FlattenOnWhite(img), maxSide))
	if err != nil {
		return nil, err
	}
	pdfImg.Format = format
	pdfImg.SourceWidth = img.Bounds().Dx()
	pdfImg.SourceHeight = img.Bounds().Dy()
	return pdfImg, nil
}

// XObject returns the image as a Flate compressed image XObject.
func (img *PDFImage) XObject() (*generic.StreamObject, error) {
	d := generic.NewDictionary()
	d.Set("Type", generic.NameObject("XObject"))
	d.Set("Subtype", generic.NameObject("Image"))
	d.Set("Width", generic.IntegerObject(img.Width))
	d.Set("Height", generic.IntegerObject(img.Height))
	d.Set("ColorSpace", generic.NameObject(img.ColorSpace))
	d.Set("BitsPerComponent", generic.IntegerObject(8))
	stream, err := filters.NewFlateStream(d, img.Pixels)
	if err != nil {
		return nil, fmt.Errorf("compress image: %w", err)
	}
	return stream, nil
}
