package visualization

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"dtiqc/pkg/nifti"
)

func gradientVolume(nx, ny, nz int) *nifti.Volume {
	v := &nifti.Volume{Nx: nx, Ny: ny, Nz: nz, Nt: 1}
	v.Data = make([]float64, nx*ny*nz)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	return v
}

func TestExtractSliceDimensions(t *testing.T) {
	v := gradientVolume(10, 8, 6)
	r := NewRenderer(100)

	cases := []struct {
		axis   Axis
		wantW  int
		wantH  int
		maxPos int
	}{
		{AxisX, 8, 6, 10},
		{AxisY, 10, 6, 8},
		{AxisZ, 10, 8, 6},
	}
	for _, tc := range cases {
		t.Run(string(tc.axis), func(t *testing.T) {
			img, err := r.ExtractSlice(v, tc.axis, 0)
			if err != nil {
				t.Fatalf("ExtractSlice: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != tc.wantW || b.Dy() != tc.wantH {
				t.Errorf("bounds = %dx%d, want %dx%d", b.Dx(), b.Dy(), tc.wantW, tc.wantH)
			}
			if _, err := r.ExtractSlice(v, tc.axis, tc.maxPos); err == nil {
				t.Error("expected error for out-of-range position")
			}
		})
	}
}

func TestExtractSliceInvalid(t *testing.T) {
	r := NewRenderer(100)
	v := gradientVolume(4, 4, 4)
	if _, err := r.ExtractSlice(v, Axis("w"), 0); err == nil {
		t.Error("expected error for invalid axis")
	}
	if _, err := r.ExtractSlice(v, AxisZ, -1); err == nil {
		t.Error("expected error for negative position")
	}
}

func TestSaveThumbnail(t *testing.T) {
	v := gradientVolume(16, 16, 8)
	r := NewRenderer(64)
	path := filepath.Join(t.TempDir(), "thumbs", "b0_axial.png")

	if err := r.SaveThumbnail(v, AxisZ, path); err != nil {
		t.Fatalf("SaveThumbnail: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if got := img.Bounds().Dx(); got != 64 {
		t.Errorf("thumbnail width = %d, want 64", got)
	}
}

func TestSaveOrthogonal(t *testing.T) {
	v := gradientVolume(8, 8, 8)
	r := NewRenderer(32)
	dir := t.TempDir()

	names, err := r.SaveOrthogonal(v, dir, "fa")
	if err != nil {
		t.Fatalf("SaveOrthogonal: %v", err)
	}
	want := []string{"fa_axial.png", "fa_sagittal.png", "fa_coronal.png"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("names[%d] = %q, want %q", i, names[i], name)
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestSaveOrthogonalNilRenderer(t *testing.T) {
	var r *Renderer
	if _, err := r.SaveOrthogonal(gradientVolume(4, 4, 4), t.TempDir(), "fa"); !errors.Is(err, ErrCapabilityUnavailable) {
		t.Errorf("err = %v, want ErrCapabilityUnavailable", err)
	}
}

func TestAxisView(t *testing.T) {
	if AxisX.View() != "sagittal" || AxisY.View() != "coronal" || AxisZ.View() != "axial" {
		t.Error("axis view names wrong")
	}
}
