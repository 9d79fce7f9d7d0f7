package buffer

import (
	"testing"

	"github.com/liuscraft/crossfade/internal/format"
)

// recordSink 记录所有写入的数据
type recordSink struct {
	data   []byte
	chunks []int
}

func (s *recordSink) Write(p []byte) {
	s.data = append(s.data, p...)
	s.chunks = append(s.chunks, len(p))
}

func (s *recordSink) frame(i int) (int16, int16) {
	return format.Sample(s.data, i*2), format.Sample(s.data, i*2+1)
}

// testFormat 1000Hz 立体声，1ms = 4 字节
func testFormat(t *testing.T) format.Format {
	t.Helper()
	f, err := format.Output(1000)
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	return f
}

func frames(n int, l, r int16) []byte {
	p := make([]byte, n*4)
	for i := 0; i < n; i++ {
		format.PutSample(p, i*2, l)
		format.PutSample(p, i*2+1, r)
	}
	return p
}

func newRing(t *testing.T, s Sizes) *Ring {
	t.Helper()
	r, err := New(s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.Reset(GapConfig{})
	return r
}
