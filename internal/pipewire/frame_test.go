package pipewire

import "testing"

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		bpp    int
		name   string
	}{
		{format: FormatBGRX, bpp: 4, name: "BGRx"},
		{format: FormatRGBX, bpp: 4, name: "RGBx"},
		{format: FormatBGR, bpp: 3, name: "BGR"},
		{format: FormatRGB, bpp: 3, name: "RGB"},
		{format: FormatUnknown, bpp: 0, name: "unknown"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.format.BytesPerPixel(); got != tc.bpp {
				t.Errorf("BytesPerPixel = %d, want %d", got, tc.bpp)
			}
			if got := tc.format.String(); got != tc.name {
				t.Errorf("String = %q, want %q", got, tc.name)
			}
		})
	}
}
