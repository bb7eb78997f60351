// Package visualization renders slice thumbnails of volumetric data for
// the HTML QC reports. Rendering is an optional capability: the report
// compiler is handed a renderer (or not) at construction and omits the
// thumbnail section when none is available.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"dtiqc/pkg/nifti"
)

// ErrCapabilityUnavailable is returned when rendering is requested on a
// nil renderer. Callers holding an optional *Renderer can forward calls
// without a nil check and treat this error as "omit the section".
var ErrCapabilityUnavailable = errors.New("visualization: rendering unavailable")

// Axis selects the slicing plane of a volume.
type Axis string

const (
	// AxisX slices along the YZ plane (sagittal view).
	AxisX Axis = "x"

	// AxisY slices along the XZ plane (coronal view).
	AxisY Axis = "y"

	// AxisZ slices along the XY plane (axial view).
	AxisZ Axis = "z"
)

// View returns the anatomical name of the slicing plane.
func (a Axis) View() string {
	switch a {
	case AxisX:
		return "sagittal"
	case AxisY:
		return "coronal"
	default:
		return "axial"
	}
}

// Renderer extracts 2D slices from volumes and writes scaled PNG
// thumbnails.
type Renderer struct {
	// thumbWidth is the output thumbnail width in pixels; height
	// follows the slice aspect ratio.
	thumbWidth int
}

// NewRenderer creates a renderer producing thumbnails of the given width.
func NewRenderer(thumbWidth int) *Renderer {
	if thumbWidth <= 0 {
		thumbWidth = 300
	}
	return &Renderer{thumbWidth: thumbWidth}
}

// ExtractSlice extracts the 2D slice at position along the given axis,
// normalized so the volume's maximum intensity maps to white.
func (r *Renderer) ExtractSlice(v *nifti.Volume, axis Axis, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var maxv float64
	for _, d := range v.Data {
		if d > maxv {
			maxv = d
		}
	}
	scale := 0.0
	if maxv > 0 {
		scale = 65535 / maxv
	}
	gray := func(x, y, z int) color.Gray16 {
		val := v.At(x, y, z) * scale
		if val < 0 {
			val = 0
		}
		if val > 65535 {
			val = 65535
		}
		return color.Gray16{Y: uint16(val)}
	}

	var img *image.Gray16
	switch axis {
	case AxisX:
		if position >= v.Nx {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.Nx)
		}
		img = image.NewGray16(image.Rect(0, 0, v.Ny, v.Nz))
		for z := 0; z < v.Nz; z++ {
			for y := 0; y < v.Ny; y++ {
				img.SetGray16(y, z, gray(position, y, z))
			}
		}

	case AxisY:
		if position >= v.Ny {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.Ny)
		}
		img = image.NewGray16(image.Rect(0, 0, v.Nx, v.Nz))
		for z := 0; z < v.Nz; z++ {
			for x := 0; x < v.Nx; x++ {
				img.SetGray16(x, z, gray(x, position, z))
			}
		}

	case AxisZ:
		if position >= v.Nz {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.Nz)
		}
		img = image.NewGray16(image.Rect(0, 0, v.Nx, v.Ny))
		for y := 0; y < v.Ny; y++ {
			for x := 0; x < v.Nx; x++ {
				img.SetGray16(x, y, gray(x, y, position))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis %q", axis)
	}

	return img, nil
}

// MiddleSlice extracts the middle slice along the given axis, the usual
// glance view for QC.
func (r *Renderer) MiddleSlice(v *nifti.Volume, axis Axis) (image.Image, error) {
	var n int
	switch axis {
	case AxisX:
		n = v.Nx
	case AxisY:
		n = v.Ny
	case AxisZ:
		n = v.Nz
	default:
		return nil, fmt.Errorf("invalid axis %q", axis)
	}
	if n == 0 {
		return nil, fmt.Errorf("volume has no extent along axis %q", axis)
	}
	return r.ExtractSlice(v, axis, n/2)
}

// SaveThumbnail writes the middle slice along axis as a PNG scaled to
// the renderer's thumbnail width.
func (r *Renderer) SaveThumbnail(v *nifti.Volume, axis Axis, path string) error {
	src, err := r.MiddleSlice(v, axis)
	if err != nil {
		return err
	}

	sb := src.Bounds()
	h := sb.Dy() * r.thumbWidth / sb.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewGray16(image.Rect(0, 0, r.thumbWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, dst)
}

// SaveOrthogonal writes axial, sagittal and coronal thumbnails of v
// into dir, named <prefix>_<view>.png. It returns the written
// filenames relative to dir.
func (r *Renderer) SaveOrthogonal(v *nifti.Volume, dir, prefix string) ([]string, error) {
	if r == nil {
		return nil, ErrCapabilityUnavailable
	}
	var names []string
	for _, axis := range []Axis{AxisZ, AxisX, AxisY} {
		name := fmt.Sprintf("%s_%s.png", prefix, axis.View())
		if err := r.SaveThumbnail(v, axis, filepath.Join(dir, name)); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}
