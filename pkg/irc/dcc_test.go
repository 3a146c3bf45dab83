package irc

import (
	"net"
	"testing"
)

// TestParseDCCOffer verifies CHAT and SEND payload parsing.
func TestParseDCCOffer(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     string
		filename string
		addr     string
		port     int
		size     int64
	}{
		{"Chat", "CHAT chat 2130706433 5000", DCCChat, "chat", "127.0.0.1", 5000, -1},
		{"SendWithSize", "SEND file.bin 3232235777 6000 1048576", DCCSend, "file.bin", "192.168.1.1", 6000, 1048576},
		{"SendNoSize", "SEND file.bin 2130706433 6000", DCCSend, "file.bin", "127.0.0.1", 6000, -1},
		{"LowercaseKind", "send x 2130706433 1", DCCSend, "x", "127.0.0.1", 1, -1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o, err := ParseDCCOffer(test.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if o.Kind != test.kind {
				t.Errorf("kind: expected %q, but got %q", test.kind, o.Kind)
			}
			if o.Filename != test.filename {
				t.Errorf("filename: expected %q, but got %q", test.filename, o.Filename)
			}
			if !o.Addr.Equal(net.ParseIP(test.addr)) {
				t.Errorf("addr: expected %s, but got %s", test.addr, o.Addr)
			}
			if o.Port != test.port {
				t.Errorf("port: expected %d, but got %d", test.port, o.Port)
			}
			if o.Size != test.size {
				t.Errorf("size: expected %d, but got %d", test.size, o.Size)
			}
		})
	}
}

// TestParseDCCOfferInvalid verifies malformed offers are rejected.
func TestParseDCCOfferInvalid(t *testing.T) {
	inputs := []string{
		"",
		"CHAT chat 2130706433",
		"RESUME file 6000 100",
		"SEND file notanaddr 6000",
		"SEND file 2130706433 99999",
	}
	for _, input := range inputs {
		if o, err := ParseDCCOffer(input); err == nil {
			t.Errorf("ParseDCCOffer(%q): expected error, but got %+v", input, o)
		}
	}
}

// TestDCCOfferRewrite verifies the proxy rewrite path: parse an offer,
// substitute the listen address and port, and render it back.
func TestDCCOfferRewrite(t *testing.T) {
	o, err := ParseDCCOffer("SEND file.bin 3232235777 6000 1048576 extra")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o.Addr = net.ParseIP("127.0.0.1")
	o.Port = 57101

	expected := "SEND file.bin 2130706433 57101 1048576 extra"
	if got := o.Args(); got != expected {
		t.Errorf("expected %q, but got %q", expected, got)
	}
}

// TestParseDCCResume verifies RESUME and ACCEPT payload parsing and
// rendering.
func TestParseDCCResume(t *testing.T) {
	r, err := ParseDCCResume("RESUME file.bin 6000 4096")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != DCCResume || r.Filename != "file.bin" || r.Port != 6000 || r.Offset != 4096 {
		t.Errorf("unexpected result: %+v", r)
	}
	if got := r.Args(); got != "RESUME file.bin 6000 4096" {
		t.Errorf("args: got %q", got)
	}

	for _, input := range []string{"ACCEPT file 6000", "RESUME file 6000 -1", "SEND file 6000 0"} {
		if _, err := ParseDCCResume(input); err == nil {
			t.Errorf("ParseDCCResume(%q): expected error", input)
		}
	}
}

// TestAddrIntConversion verifies the wire integer form of IPv4 addresses.
func TestAddrIntConversion(t *testing.T) {
	tests := []struct {
		addr string
		n    uint32
	}{
		{"127.0.0.1", 2130706433},
		{"192.168.1.1", 3232235777},
		{"0.0.0.0", 0},
		{"255.255.255.255", 4294967295},
	}

	for _, test := range tests {
		ip := net.ParseIP(test.addr)
		if got := AddrToInt(ip); got != test.n {
			t.Errorf("AddrToInt(%s): expected %d, but got %d", test.addr, test.n, got)
		}
		if got := IntToAddr(test.n); !got.Equal(ip) {
			t.Errorf("IntToAddr(%d): expected %s, but got %s", test.n, test.addr, got)
		}
	}

	if got := AddrToInt(net.ParseIP("::1")); got != 0 {
		t.Errorf("AddrToInt(::1): expected 0, but got %d", got)
	}
}

// TestSafeBasename verifies directory components cannot leak into capture
// file names.
func TestSafeBasename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"file.bin", "file.bin"},
		{"/etc/passwd", "passwd"},
		{"..\\..\\boot.ini", "boot.ini"},
		{"dir/../file", "file"},
		{"..", "unnamed"},
		{".", "unnamed"},
		{"", "unnamed"},
		{"a/", "unnamed"},
	}

	for _, test := range tests {
		if got := SafeBasename(test.input); got != test.expected {
			t.Errorf("SafeBasename(%q): expected %q, but got %q", test.input, test.expected, got)
		}
	}
}
