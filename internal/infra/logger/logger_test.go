package logger

import "testing"

func TestMaskTarget(t *testing.T) {
	cases := map[string]string{
		"13800138000":          "138****8000",
		"zhangsan@example.com": "z***@example.com",
		"":                     "",
		"123":                  "***",
	}
	for in, want := range cases {
		if got := MaskTarget(in); got != want {
			t.Fatalf("MaskTarget(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskIP(t *testing.T) {
	if got := MaskIP("192.168.1.100"); got != "192.168.*.*" {
		t.Fatalf("unexpected ipv4 mask %q", got)
	}
	if got := MaskIP("2001:0db8:85a3:0000:0000:8a2e:0370:7334"); got != "2001:0db8:85a3:0000:*:*:*:*" {
		t.Fatalf("unexpected ipv6 mask %q", got)
	}
}

func TestMaskString(t *testing.T) {
	if got := MaskString("secret123"); got != "se***23" {
		t.Fatalf("unexpected mask %q", got)
	}
}
