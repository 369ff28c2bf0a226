// Package imaging converts pipeline output tensors into standard Go images
// and provides the pixel-side helpers generation frontends need: PNG
// encoding and validation, and redaction placeholders for safety-screened
// images.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/pdevine/tensor"
	"golang.org/x/image/draw"
)

// PNG magic bytes for file identification.
var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Image validation errors.
var (
	ErrImageEmpty      = errors.New("imaging: image data is empty")
	ErrImageNotPNG     = errors.New("imaging: image data is not a valid PNG")
	ErrImageTooSmall   = errors.New("imaging: image data too small to be valid")
	ErrImageDecodeFail = errors.New("imaging: failed to decode image")
	ErrBadTensor       = errors.New("imaging: tensor is not a pixel image batch")
)

// ImageAt extracts one image from a (batch, height, width, 3) float32
// pixel tensor with values in [0, 1], as produced by the pipeline's final
// output.
func ImageAt(images *tensor.Dense, index int) (*image.NRGBA, error) {
	shape := images.Shape()
	if len(shape) != 4 || shape[3] != 3 {
		return nil, fmt.Errorf("%w: shape %v, want (batch, h, w, 3)", ErrBadTensor, shape)
	}
	if index < 0 || index >= shape[0] {
		return nil, fmt.Errorf("%w: index %d out of range for batch %d", ErrBadTensor, index, shape[0])
	}
	data, ok := images.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: dtype %v, want float32", ErrBadTensor, images.Dtype())
	}

	height, width := shape[1], shape[2]
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	base := index * height * width * 3
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src := base + (y*width+x)*3
			dst := img.PixOffset(x, y)
			img.Pix[dst+0] = clampByte(data[src+0])
			img.Pix[dst+1] = clampByte(data[src+1])
			img.Pix[dst+2] = clampByte(data[src+2])
			img.Pix[dst+3] = 0xFF
		}
	}
	return img, nil
}

// TensorFromImage converts an image into a (1, height, width, 3) float32
// tensor with values in [0, 1]. The inverse of ImageAt for a single image;
// safety checker implementations use it to splice redacted placeholders
// back into an output batch.
func TensorFromImage(img image.Image) *tensor.Dense {
	bounds := img.Bounds()
	height, width := bounds.Dy(), bounds.Dx()
	data := make([]float32, height*width*3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			data[i+0] = float32(r) / 0xFFFF
			data[i+1] = float32(g) / 0xFFFF
			data[i+2] = float32(b) / 0xFFFF
			i += 3
		}
	}
	return tensor.New(tensor.WithShape(1, height, width, 3), tensor.WithBacking(data))
}

// EncodePNG encodes an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return buf.Bytes(), nil
}

// IsPNG checks if the given data starts with PNG magic bytes.
// This is a pure function with no side effects.
func IsPNG(data []byte) bool {
	if len(data) < len(pngMagic) {
		return false
	}
	return bytes.Equal(data[:len(pngMagic)], pngMagic)
}

// ValidatePNG validates that data is a well-formed PNG image.
// Returns nil if valid, error otherwise.
func ValidatePNG(data []byte) error {
	if len(data) == 0 {
		return ErrImageEmpty
	}

	// Minimum PNG file size: 8 (signature) + 25 (IHDR) + 12 (IEND).
	if len(data) < 45 {
		return ErrImageTooSmall
	}

	if !IsPNG(data) {
		return ErrImageNotPNG
	}

	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return nil
}

// Pixelate returns a heavily pixelated copy of src, suitable as a
// redaction placeholder for safety-flagged images. factor is the edge
// length of one resulting block in pixels; values below 2 return an
// unmodified copy.
func Pixelate(src image.Image, factor int) *image.NRGBA {
	bounds := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	if factor < 2 {
		draw.Copy(out, image.Point{}, src, bounds, draw.Src, nil)
		return out
	}

	smallW, smallH := bounds.Dx()/factor, bounds.Dy()/factor
	if smallW < 1 {
		smallW = 1
	}
	if smallH < 1 {
		smallH = 1
	}

	// Downscale then upscale; averaging during the downscale destroys the
	// detail, the nearest-neighbor upscale keeps the blocks crisp.
	small := image.NewNRGBA(image.Rect(0, 0, smallW, smallH))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), src, bounds, draw.Src, nil)
	draw.NearestNeighbor.Scale(out, out.Bounds(), small, small.Bounds(), draw.Src, nil)
	return out
}

func clampByte(v float32) uint8 {
	v *= 255
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
