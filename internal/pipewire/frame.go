package pipewire

// Format is the negotiated pixel layout. Alpha, when present, is ignored.
type Format int

const (
	FormatUnknown Format = iota
	FormatBGRX
	FormatRGBX
	FormatBGR
	FormatRGB
)

func (f Format) BytesPerPixel() int {
	switch f {
	case FormatBGRX, FormatRGBX:
		return 4
	case FormatBGR, FormatRGB:
		return 3
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case FormatBGRX:
		return "BGRx"
	case FormatRGBX:
		return "RGBx"
	case FormatBGR:
		return "BGR"
	case FormatRGB:
		return "RGB"
	}
	return "unknown"
}

// Frame borrows PipeWire's buffer. Data is only valid during the callback.
type Frame struct {
	Data          []byte
	Width, Height int
	Stride        int
	Format        Format
}
