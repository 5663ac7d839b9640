// Package exiftest builds JPEG fixtures carrying an EXIF APP1 segment.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"math"
)

// Options describes the metadata written into the fixture
type Options struct {
	// Orientation is the raw EXIF value; 0 omits the tag
	Orientation int
	// GPS is written when non-nil as {latitude, longitude}
	GPS *[2]float64
}

// SolidJPEG encodes a w×h grey image and no metadata
func SolidJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	grey := color.RGBA{120, 120, 120, 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, grey)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns a w×h JPEG with the requested EXIF block
func JPEG(w, h int, opts Options) []byte {
	return WithEXIF(SolidJPEG(w, h), opts)
}

// GPS is shorthand for building Options.GPS
func GPS(lat, lon float64) *[2]float64 {
	return &[2]float64{lat, lon}
}

// WithEXIF inserts an APP1 segment right after the SOI marker
func WithEXIF(jpegData []byte, opts Options) []byte {
	tiff := buildTIFF(opts)
	payload := append([]byte("Exif\x00\x00"), tiff...)

	var out bytes.Buffer
	out.Write(jpegData[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpegData[2:])
	return out.Bytes()
}

type entry struct {
	tag, typ uint16
	count    uint32
	value    []byte // inline when len <= 4, else stored in the data area
}

const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

func buildTIFF(opts Options) []byte {
	le := binary.LittleEndian

	var ifd0 []entry
	if opts.Orientation != 0 {
		v := make([]byte, 2)
		le.PutUint16(v, uint16(opts.Orientation))
		ifd0 = append(ifd0, entry{tag: 0x0112, typ: typeShort, count: 1, value: v})
	}

	var gps []entry
	if opts.GPS != nil {
		lat, lon := opts.GPS[0], opts.GPS[1]
		latRef, lonRef := "N", "E"
		if lat < 0 {
			latRef = "S"
		}
		if lon < 0 {
			lonRef = "W"
		}
		gps = []entry{
			{tag: 0x0001, typ: typeASCII, count: 2, value: []byte(latRef + "\x00")},
			{tag: 0x0002, typ: typeRational, count: 3, value: dms(math.Abs(lat))},
			{tag: 0x0003, typ: typeASCII, count: 2, value: []byte(lonRef + "\x00")},
			{tag: 0x0004, typ: typeRational, count: 3, value: dms(math.Abs(lon))},
		}
		// placeholder, patched once the GPS IFD offset is known
		ifd0 = append(ifd0, entry{tag: 0x8825, typ: typeLong, count: 1, value: make([]byte, 4)})
	}

	ifdSize := func(n int) int { return 2 + 12*n + 4 }
	ifd0Offset := 8
	gpsOffset := ifd0Offset + ifdSize(len(ifd0))
	dataOffset := gpsOffset
	if len(gps) > 0 {
		dataOffset += ifdSize(len(gps))
		le.PutUint32(ifd0[len(ifd0)-1].value, uint32(gpsOffset))
	}

	var data bytes.Buffer
	writeIFD := func(buf *bytes.Buffer, entries []entry) {
		_ = binary.Write(buf, le, uint16(len(entries)))
		for _, e := range entries {
			_ = binary.Write(buf, le, e.tag)
			_ = binary.Write(buf, le, e.typ)
			_ = binary.Write(buf, le, e.count)
			if len(e.value) <= 4 {
				v := make([]byte, 4)
				copy(v, e.value)
				buf.Write(v)
				continue
			}
			_ = binary.Write(buf, le, uint32(dataOffset+data.Len()))
			data.Write(e.value)
		}
		_ = binary.Write(buf, le, uint32(0))
	}

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, le, uint16(42))
	_ = binary.Write(&out, le, uint32(ifd0Offset))
	writeIFD(&out, ifd0)
	if len(gps) > 0 {
		writeIFD(&out, gps)
	}
	out.Write(data.Bytes())
	return out.Bytes()
}

// dms encodes decimal degrees as three rationals: degrees, minutes, seconds/10000
func dms(v float64) []byte {
	deg := math.Floor(v)
	minFloat := (v - deg) * 60
	mins := math.Floor(minFloat)
	sec := math.Round((minFloat - mins) * 60 * 10000)

	le := binary.LittleEndian
	out := make([]byte, 24)
	le.PutUint32(out[0:], uint32(deg))
	le.PutUint32(out[4:], 1)
	le.PutUint32(out[8:], uint32(mins))
	le.PutUint32(out[12:], 1)
	le.PutUint32(out[16:], uint32(sec))
	le.PutUint32(out[20:], 10000)
	return out
}
