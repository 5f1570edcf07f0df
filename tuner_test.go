package main

import (
	"testing"
	"unsafe"
)

func TestCString(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte("hello\x00world"), "hello"},
		{[]byte("no-nul"), "no-nul"},
		{[]byte{0, 'a'}, ""},
	}
	for _, c := range cases {
		if got := cString(c.in); got != c.want {
			t.Errorf("cString(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIocNum(t *testing.T) {
	// VIDIOC_QUERYCAP is well-known as 0x80685600 on Linux.
	const vidiocQueryCapWant = 0x80685600
	if vidiocQueryCap != vidiocQueryCapWant {
		t.Errorf("vidiocQueryCap = 0x%08X, want 0x%08X", vidiocQueryCap, vidiocQueryCapWant)
	}
}

func TestStructSizes(t *testing.T) {
	cases := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"v4l2Capability", unsafe.Sizeof(v4l2Capability{}), 104},
		{"v4l2Tuner", unsafe.Sizeof(v4l2Tuner{}), 84},
		{"v4l2Frequency", unsafe.Sizeof(v4l2Frequency{}), 44},
		{"v4l2HwFreqSeek", unsafe.Sizeof(v4l2HwFreqSeek{}), 48},
		{"v4l2QueryCtrl", unsafe.Sizeof(v4l2QueryCtrl{}), 68},
		{"v4l2Control", unsafe.Sizeof(v4l2Control{}), 8},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("sizeof(%s) = %d, want %d", c.name, c.got, c.want)
		}
	}
}
