package seq

import (
	"testing"
	"time"
)

func TestDatePrefix(t *testing.T) {
	d := time.Date(2026, 9, 1, 15, 4, 5, 0, time.UTC)
	if got := DatePrefix("BRW", d); got != "BRW260901-" {
		t.Errorf("unexpected prefix: %s", got)
	}
	if got := DatePrefix("OPN", d); got != "OPN260901-" {
		t.Errorf("unexpected prefix: %s", got)
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{1, "BRW260901-0001"},
		{42, "BRW260901-0042"},
		{9999, "BRW260901-9999"},
		{10000, "BRW260901-10000"}, // overflow widens, never truncates
	}
	for _, c := range cases {
		if got := Format("BRW260901-", c.n); got != c.want {
			t.Errorf("Format(%d) = %s, want %s", c.n, got, c.want)
		}
	}
}
