package anatomy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"brainmap/internal/models"
)

// NIfTI-1 single-file header layout.
const (
	headerSize   = 348
	offsetDim    = 40
	offsetType   = 70
	offsetBitPix = 72
	offsetVox    = 108
	offsetSform  = 254
	offsetSrowX  = 280
	offsetMagic  = 344
	minVoxOffset = 352
)

// NIfTI-1 datatype codes the voxel decoder reads.
const (
	DTUint8   = 2
	DTInt16   = 4
	DTFloat32 = 16
	DTFloat64 = 64
	DTUint16  = 512
)

// bitsPerType maps each supported datatype to its voxel width.
var bitsPerType = map[int]int{
	DTUint8:   8,
	DTInt16:   16,
	DTFloat32: 32,
	DTFloat64: 64,
	DTUint16:  16,
}

// ErrCorrupt marks a template file whose header cannot be trusted.
var ErrCorrupt = errors.New("corrupt template")

// Header is the subset of the NIfTI-1 header brainmap relies on.
type Header struct {
	Width, Height, Depth int

	// DataType is the NIfTI-1 datatype code
	DataType int

	// BitPix is the number of bits per voxel
	BitPix int

	// VoxOffset is where voxel data starts in the file
	VoxOffset int64

	// Affine is the sform mapping, valid only when HasSform is set
	Affine   models.Affine
	HasSform bool
}

// DataEnd returns the file size needed to hold the first 3D volume.
func (h *Header) DataEnd() int64 {
	return h.VoxOffset + int64(h.Width)*int64(h.Height)*int64(h.Depth)*int64(h.BitPix/8)
}

// ReadHeader parses and validates a single-file NIfTI-1 header.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrCorrupt, err)
	}
	return parseHeader(buf)
}

func parseHeader(buf []byte) (*Header, error) {
	// The voxel decoder only reads little-endian data
	order := binary.LittleEndian
	switch {
	case order.Uint32(buf[0:4]) == headerSize:
	case binary.BigEndian.Uint32(buf[0:4]) == headerSize:
		return nil, fmt.Errorf("%w: big-endian files are not supported", ErrCorrupt)
	default:
		return nil, fmt.Errorf("%w: sizeof_hdr is not %d", ErrCorrupt, headerSize)
	}

	if !bytes.Equal(buf[offsetMagic:offsetMagic+4], []byte("n+1\x00")) {
		return nil, fmt.Errorf("%w: missing n+1 magic", ErrCorrupt)
	}

	ndim := int(int16(order.Uint16(buf[offsetDim:])))
	if ndim < 3 || ndim > 7 {
		return nil, fmt.Errorf("%w: unsupported dimension count %d", ErrCorrupt, ndim)
	}
	var dims [3]int
	for i := 0; i < 3; i++ {
		dims[i] = int(int16(order.Uint16(buf[offsetDim+2*(i+1):])))
		if dims[i] < 1 {
			return nil, fmt.Errorf("%w: dimension %d is %d", ErrCorrupt, i+1, dims[i])
		}
	}

	datatype := int(int16(order.Uint16(buf[offsetType:])))
	want, ok := bitsPerType[datatype]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported datatype %d", ErrCorrupt, datatype)
	}
	bitpix := int(int16(order.Uint16(buf[offsetBitPix:])))
	if bitpix != want {
		return nil, fmt.Errorf("%w: datatype %d needs bitpix %d, header has %d", ErrCorrupt, datatype, want, bitpix)
	}

	vox := math.Float32frombits(order.Uint32(buf[offsetVox:]))
	if math.IsNaN(float64(vox)) || vox < minVoxOffset {
		return nil, fmt.Errorf("%w: vox_offset %g before end of header", ErrCorrupt, vox)
	}

	h := &Header{
		Width:     dims[0],
		Height:    dims[1],
		Depth:     dims[2],
		DataType:  datatype,
		BitPix:    bitpix,
		VoxOffset: int64(vox),
	}

	if int16(order.Uint16(buf[offsetSform:])) > 0 {
		var a models.Affine
		for row := 0; row < 3; row++ {
			base := offsetSrowX + 16*row
			a.Scale[row] = float64(math.Float32frombits(order.Uint32(buf[base+4*row:])))
			a.Offset[row] = float64(math.Float32frombits(order.Uint32(buf[base+12:])))
		}
		if a.Valid() {
			h.Affine = a
			h.HasSform = true
		}
	}

	return h, nil
}
