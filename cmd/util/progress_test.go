package util

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func newTestPrinter(width int) (*ProgressPrinter, *bytes.Buffer, clockwork.FakeClock) {
	out := &bytes.Buffer{}
	clock := clockwork.NewFakeClock()
	return &ProgressPrinter{
		out:   out,
		clock: clock,
		width: func() int { return width },
	}, out, clock
}

func lastLine(out *bytes.Buffer) string {
	lines := strings.Split(out.String(), "\r")
	return strings.TrimRight(lines[len(lines)-1], " ")
}

func TestProgressThrottled(t *testing.T) {
	pp, out, clock := newTestPrinter(60)
	progress := pp.For("pkgs/a.rpm")

	progress(0, 4096)
	assert.Equal(t, "pkgs/a.rpm: 0 B / 4.0 KiB (0%)", lastLine(out))

	// Updates within the interval are dropped.
	progress(1024, 4096)
	assert.Equal(t, "pkgs/a.rpm: 0 B / 4.0 KiB (0%)", lastLine(out))

	clock.Advance(ProgressInterval)
	progress(2048, 4096)
	assert.Equal(t, "pkgs/a.rpm: 2.0 KiB / 4.0 KiB (50%)", lastLine(out))

	// The line is erased once the download completes, regardless of the
	// interval.
	progress(4096, 4096)
	assert.Equal(t, "", lastLine(out))
	assert.False(t, pp.drawn)

	// A new download starts drawing right away.
	pp.For("pkgs/b.rpm")(1536, 3072)
	assert.Equal(t, "pkgs/b.rpm: 1.5 KiB / 3.0 KiB (50%)", lastLine(out))

	pp.Clear()
	assert.Equal(t, "", lastLine(out))
}

func TestProgressLineWidth(t *testing.T) {
	pp, out, _ := newTestPrinter(30)
	pp.For("pkgs/some/very/long/path/package-1.0.rpm")(5, -1)
	line := lastLine(out)
	assert.Equal(t, ".../path/package-1.0.rpm: 5 B", line)
	assert.Len(t, line, 29)

	// Terminals that don't report a width fall back to a default.
	pp, out, _ = newTestPrinter(-1)
	pp.For("a.rpm")(0, 10)
	assert.Len(t, strings.Split(out.String(), "\r")[1], defaultWidth-1)
}

func TestProgressLineWidthMultiByte(t *testing.T) {
	pp, out, _ := newTestPrinter(12)
	pp.For("пакеты/ä.rpm")(5, -1)
	line := lastLine(out)
	assert.True(t, utf8.ValidString(line))
	assert.Equal(t, "...rpm: 5 B", line)
	assert.Equal(t, 11, utf8.RuneCountInString(line))

	pp, out, _ = newTestPrinter(30)
	pp.For("пакеты/ä.rpm")(5, -1)
	assert.Equal(t, "пакеты/ä.rpm: 5 B", lastLine(out))
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
		3 << 30:         "3.0 GiB",
	}
	for n, exp := range tests {
		assert.Equal(t, exp, formatBytes(n))
	}
}

func TestClearWithoutProgress(t *testing.T) {
	pp, out, _ := newTestPrinter(40)
	pp.Clear()
	assert.Empty(t, out.String())
}
