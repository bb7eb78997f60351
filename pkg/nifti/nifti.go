// Package nifti reads NIfTI-1 volumes (.nii and .nii.gz) without cgo.
//
// Only the single-file "n+1" layout is supported, which is what FSL and
// DIPY emit. The header layout follows the official definition at
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnreadable marks a file that exists but cannot be parsed as a
// NIfTI-1 volume (truncated, wrong magic, unsupported datatype).
var ErrUnreadable = errors.New("nifti: unreadable artifact")

// Header is the fixed 348-byte NIfTI-1 header.
//
// Type translation from the C header:
//
//	C     Go
//	-------------
//	int   int32
//	float float32
//	short int16
//	char  int8
type Header struct {
	SizeOfHdr          int32    // Must be 348
	UnusedDataType     [10]int8 // Unused
	UnusedDbName       [18]int8 // Unused
	UnusedExtents      int32    // Unused
	UnusedSessionError int16    // Unused
	UnusedRegular      int8     // Unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	DataType      int16      // Defines data type
	BitPix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	PixDim        [8]float32 // Grid spacing
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     int8       // Slice timing order
	XYZTUnits     int8       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	TOffset       float32    // Time axis shift
	UnusedGlmax   int32      // Unused
	UnusedGlmin   int32      // Unused

	Descrip [80]int8 // Any text you like
	AuxFile [24]int8 // Auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b param
	QuaternC float32 // Quaternion c param
	QuaternD float32 // Quaternion d param
	QOffsetX float32 // Quaternion x shift
	QOffsetY float32 // Quaternion y shift
	QOffsetZ float32 // Quaternion z shift

	SRowX [4]float32 // 1st row affine transform
	SRowY [4]float32 // 2nd row affine transform
	SRowZ [4]float32 // 3rd row affine transform

	IntentName [16]int8 // 'name' or meaning of data

	Magic [4]int8 // Must be "n+1\0"
}

// NIfTI-1 datatype codes for the voxel formats this reader supports.
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
)

const (
	minHeaderSize = 348
	headerSize    = 352
)

var magicN1 = [4]int8{'n', '+', '1', 0}

// Volume is a decoded volume with voxel intensities widened to float64.
// Data is stored in the NIfTI on-disk order: x fastest, then y, z, t.
type Volume struct {
	Data           []float64
	Nx, Ny, Nz, Nt int
	PixDim         [8]float64
}

// Shape returns the spatial grid dimensions.
func (v *Volume) Shape() [3]int { return [3]int{v.Nx, v.Ny, v.Nz} }

// SameShape reports whether v and o share the same spatial grid.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Nx == o.Nx && v.Ny == o.Ny && v.Nz == o.Nz
}

// VoxelVolume returns the physical volume of one voxel in mm3.
func (v *Volume) VoxelVolume() float64 {
	return v.PixDim[1] * v.PixDim[2] * v.PixDim[3]
}

// At returns the voxel intensity at (x, y, z) in the first frame.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[z*v.Nx*v.Ny+y*v.Nx+x]
}

// ReadFile reads a .nii or .nii.gz volume from disk. Parse failures are
// wrapped with ErrUnreadable so callers can degrade a single check
// instead of aborting the batch.
func ReadFile(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
		}
		defer gz.Close()
		r = gz
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	vol, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return vol, nil
}

// Decode parses a complete NIfTI-1 byte stream (header plus voxels).
func Decode(raw []byte) (*Volume, error) {
	h, order, err := readHeader(raw)
	if err != nil {
		return nil, err
	}
	return decodeVoxels(h, order, raw)
}

// readHeader parses the fixed header, inferring byte order from the
// sizeof_hdr field the way nifti1_io.c does.
func readHeader(raw []byte) (Header, binary.ByteOrder, error) {
	if len(raw) < minHeaderSize {
		return Header{}, nil, fmt.Errorf("file too short for header: %d bytes", len(raw))
	}

	var h Header
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return Header{}, nil, err
	}
	if h.SizeOfHdr != minHeaderSize {
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return Header{}, nil, err
		}
	}
	if h.SizeOfHdr != minHeaderSize {
		return Header{}, nil, fmt.Errorf("invalid header size %d", h.SizeOfHdr)
	}
	if h.Magic != magicN1 {
		return Header{}, nil, fmt.Errorf("invalid magic %v, want n+1", h.Magic)
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return Header{}, nil, fmt.Errorf("dim[0] out of range: %d", h.Dim[0])
	}
	return h, order, nil
}

func decodeVoxels(h Header, order binary.ByteOrder, raw []byte) (*Volume, error) {
	dim := func(i int) int {
		if h.Dim[i] > 0 {
			return int(h.Dim[i])
		}
		return 1
	}
	nx, ny, nz, nt := dim(1), dim(2), dim(3), dim(4)
	nvox := nx * ny * nz * nt

	offset := int(h.VoxOffset)
	if offset < headerSize {
		offset = headerSize
	}
	// Bytes per voxel follow from the datatype code; the header's
	// bitpix field must agree or the length check below is meaningless.
	var byPer int
	switch h.DataType {
	case DTUint8:
		byPer = 1
	case DTInt16:
		byPer = 2
	case DTInt32, DTFloat32:
		byPer = 4
	case DTFloat64:
		byPer = 8
	default:
		return nil, fmt.Errorf("unsupported datatype code %d", h.DataType)
	}
	if int(h.BitPix) != byPer*8 {
		return nil, fmt.Errorf("bitpix %d disagrees with datatype code %d", h.BitPix, h.DataType)
	}
	if want := offset + nvox*byPer; len(raw) < want {
		return nil, fmt.Errorf("truncated voxel data: have %d bytes, want %d", len(raw), want)
	}
	body := raw[offset:]

	data := make([]float64, nvox)
	switch h.DataType {
	case DTUint8:
		for i := range data {
			data[i] = float64(body[i])
		}
	case DTInt16:
		for i := range data {
			data[i] = float64(int16(order.Uint16(body[i*2:])))
		}
	case DTInt32:
		for i := range data {
			data[i] = float64(int32(order.Uint32(body[i*4:])))
		}
	case DTFloat32:
		for i := range data {
			data[i] = float64(math.Float32frombits(order.Uint32(body[i*4:])))
		}
	case DTFloat64:
		for i := range data {
			data[i] = math.Float64frombits(order.Uint64(body[i*8:]))
		}
	}

	// scl_slope == 0 means "no scaling" per the standard.
	if h.SclSlope != 0 && (h.SclSlope != 1 || h.SclInter != 0) {
		slope, inter := float64(h.SclSlope), float64(h.SclInter)
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	vol := &Volume{Data: data, Nx: nx, Ny: ny, Nz: nz, Nt: nt}
	for i := range vol.PixDim {
		vol.PixDim[i] = float64(h.PixDim[i])
	}
	return vol, nil
}

// WriteFile writes v as a float32 NIfTI-1 file. Gzip compression is
// chosen by the .gz extension. Used to produce fixtures and derived
// masks; upstream tools remain the producers of real data.
func WriteFile(path string, v *Volume) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var h Header
	h.SizeOfHdr = minHeaderSize
	h.Magic = magicN1
	h.DataType = DTFloat32
	h.BitPix = 32
	h.VoxOffset = headerSize
	h.SclSlope = 1
	h.Dim[0] = 4
	h.Dim[1], h.Dim[2], h.Dim[3], h.Dim[4] = int16(v.Nx), int16(v.Ny), int16(v.Nz), int16(max(v.Nt, 1))
	for i := range h.PixDim {
		h.PixDim[i] = float32(v.PixDim[i])
	}
	if h.PixDim[1] == 0 {
		h.PixDim[1], h.PixDim[2], h.PixDim[3] = 1, 1, 1
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return err
	}
	buf.Write(make([]byte, headerSize-minHeaderSize))
	for _, d := range v.Data {
		if err := binary.Write(&buf, binary.LittleEndian, float32(d)); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	_, err = w.Write(buf.Bytes())
	return err
}
