package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTempName(t *testing.T) {
	tn, ok := ParseTempName("chan_c1_20240101_080000_temp_001.mp4")
	assert.True(t, ok)
	assert.Equal(t, TempName{Prefix: "chan_c1", Date: "20240101", Start: "080000", Seq: "001"}, tn)
	assert.False(t, tn.Legacy())

	tn, ok = ParseTempName("News_stream_ab12_20240101_temp_7.mp4")
	assert.True(t, ok)
	assert.Equal(t, "News_stream_ab12", tn.Prefix)
	assert.True(t, tn.Legacy())

	for _, name := range []string{
		"chan_c1_20240101_080000_to_093000.mp4",
		"chan_c1_20240101_080000_temp_001.mp4.repair.mp4",
		"chan_c1_2024011_temp_001.mp4",
		"notes.txt",
	} {
		_, ok := ParseTempName(name)
		assert.False(t, ok, name)
	}
}

func TestFinalName(t *testing.T) {
	fn, ok := ParseFinalName("chan_c1_20240101_080000_to_093000.mp4")
	assert.True(t, ok)
	assert.Equal(t, FinalName{Prefix: "chan_c1", Date: "20240101", Start: "080000", End: "093000"}, fn)
	assert.Equal(t, "chan_c1_20240101_080000_to_093000.mp4", fn.String())
	assert.Equal(t, 90*time.Minute, fn.Span())

	overnight := FinalName{Start: "230000", End: "010000"}
	assert.Equal(t, 2*time.Hour, overnight.Span())

	_, ok = ParseFinalName("chan_c1_20240101_080000_temp_001.mp4")
	assert.False(t, ok)
}

func TestStamp(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	ts := time.Date(2024, 1, 1, 1, 2, 3, 0, time.UTC)
	assert.Equal(t, "090203", Stamp(ts, loc))
}
