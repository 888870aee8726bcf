package main

import "testing"

func TestNormalizeWSURL(t *testing.T) {
	testCases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"ws://192.168.1.2:8080/ws?pin=1234", "ws://192.168.1.2:8080/ws?pin=1234", false},
		{"wss://example.org/ws", "wss://example.org/ws", false},
		{"https://example.org/anything?pin=0042", "wss://example.org/ws?pin=0042", false},
		{"  ws://127.0.0.1:9000  ", "ws://127.0.0.1:9000/ws", false},
		{"ws://127.0.0.1:9000/ws?pin=", "ws://127.0.0.1:9000/ws", false},
		{"not a url", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		got, err := normalizeWSURL(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("normalizeWSURL(%q): expected error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeWSURL(%q) failed: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("normalizeWSURL(%q): got %q, want %q", tc.raw, got, tc.want)
		}
	}
}
