package usbshare

import (
	"slices"
	"testing"
	"unicode/utf16"
)

func encodeUTF16(parts ...string) []uint16 {
	var buf []uint16
	for _, p := range parts {
		buf = append(buf, utf16.Encode([]rune(p))...)
		buf = append(buf, 0)
	}
	buf = append(buf, 0)
	return buf
}

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name string
		buf  []uint16
		want string
	}{
		{"terminated", encodeUTF16("USB Mass Storage"), "USB Mass Storage"},
		{"stops at first NUL", append(encodeUTF16("head"), utf16.Encode([]rune("tail"))...), "head"},
		{"unterminated", utf16.Encode([]rune("raw")), "raw"},
		{"empty", []uint16{0}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		if got := decodeString(tt.buf); got != tt.want {
			t.Errorf("%s: decodeString = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDecodeStringList(t *testing.T) {
	tests := []struct {
		name string
		buf  []uint16
		want []string
	}{
		{"two entries", encodeUTF16(`USB\COMPOSITE`, `USB\Class_00`), []string{`USB\COMPOSITE`, `USB\Class_00`}},
		{"drops empties", append([]uint16{0}, encodeUTF16("only")...), []string{"only"}},
		{"missing final terminator", utf16.Encode([]rune("tail")), []string{"tail"}},
		{"empty list", []uint16{0}, nil},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		if got := decodeStringList(tt.buf); !slices.Equal(got, tt.want) {
			t.Errorf("%s: decodeStringList = %q, want %q", tt.name, got, tt.want)
		}
	}
}
