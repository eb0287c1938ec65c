package audiodevice

import "encoding/binary"

// AppendSamples encodes samples in the given format and appends them to dst.
// Values outside the range of the format are truncated.
func AppendSamples(dst []byte, format SampleFormat, samples []int) []byte {
	switch format {
	case FormatUInt8:
		for _, s := range samples {
			dst = append(dst, byte(s))
		}
	case FormatInt16:
		for _, s := range samples {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(s)))
		}
	case FormatInt24:
		for _, s := range samples {
			dst = append(dst, byte(s), byte(s>>8), byte(s>>16))
		}
	case FormatInt32:
		for _, s := range samples {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(s)))
		}
	}
	return dst
}

// DecodeSamples decodes little endian PCM bytes into dst, which is grown as
// needed. Trailing bytes that do not form a whole sample are ignored.
func DecodeSamples(dst []int, format SampleFormat, src []byte) []int {
	width := format.Width()
	if width == 0 {
		return dst[:0]
	}
	n := len(src) / width
	if cap(dst) < n {
		dst = make([]int, n)
	}
	dst = dst[:n]

	for i := range n {
		b := src[i*width : (i+1)*width]
		switch format {
		case FormatUInt8:
			dst[i] = int(b[0])
		case FormatInt16:
			dst[i] = int(int16(binary.LittleEndian.Uint16(b)))
		case FormatInt24:
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			// sign extend from bit 23
			dst[i] = int(v<<8) >> 8
		case FormatInt32:
			dst[i] = int(int32(binary.LittleEndian.Uint32(b)))
		}
	}
	return dst
}
