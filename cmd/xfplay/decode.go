package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/liuscraft/crossfade/internal/format"
)

var (
	errUnsupportedFile = errors.New("unsupported file type")
	errInvalidWAV      = errors.New("invalid WAV file")
)

// source 解码后的 PCM 数据流
type source interface {
	io.ReadCloser
	// Format 返回采样格式、采样率和声道数
	Format() (format.Kind, int, int)
}

// openSource 按扩展名选择解码器
func openSource(path string) (source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var src source
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		src, err = newWAVSource(f)
	case ".mp3":
		src, err = newMP3Source(f)
	case ".ogg", ".oga":
		src, err = newOggSource(f)
	default:
		err = errUnsupportedFile
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

type wavSource struct {
	f       *os.File
	dec     *wav.Decoder
	buf     *audio.IntBuffer
	kind    format.Kind
	depth   int
	pending []byte
}

func newWAVSource(f *os.File) (*wavSource, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errInvalidWAV
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: audio format %d", errUnsupportedFile, dec.WavAudioFormat)
	}
	depth := int(dec.BitDepth)
	kind := format.KindS16LE
	switch depth {
	case 8:
		kind = format.KindU8
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit samples", errUnsupportedFile, depth)
	}
	return &wavSource{
		f:     f,
		dec:   dec,
		kind:  kind,
		depth: depth,
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
			Data:   make([]int, 4096),
		},
	}, nil
}

func (s *wavSource) Format() (format.Kind, int, int) {
	return s.kind, int(s.dec.SampleRate), int(s.dec.NumChans)
}

func (s *wavSource) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		n, err := s.dec.PCMBuffer(s.buf)
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
		s.pending = s.encode(s.buf.Data[:n])
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// encode 8 位原样输出，其余位深截成 16 位
func (s *wavSource) encode(data []int) []byte {
	if s.kind == format.KindU8 {
		out := make([]byte, len(data))
		for i, v := range data {
			out[i] = byte(v)
		}
		return out
	}
	shift := s.depth - 16
	out := make([]byte, len(data)*2)
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v>>shift)))
	}
	return out
}

func (s *wavSource) Close() error {
	return s.f.Close()
}

// mp3Source go-mp3 固定输出 16 位立体声
type mp3Source struct {
	f   *os.File
	dec *mp3.Decoder
}

func newMP3Source(f *os.File) (*mp3Source, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}
	return &mp3Source{f: f, dec: dec}, nil
}

func (s *mp3Source) Format() (format.Kind, int, int) {
	return format.KindS16LE, s.dec.SampleRate(), 2
}

func (s *mp3Source) Read(p []byte) (int, error) { return s.dec.Read(p) }
func (s *mp3Source) Close() error               { return s.f.Close() }

type oggSource struct {
	f       *os.File
	dec     *oggvorbis.Reader
	samples []float32
	pending []byte
}

func newOggSource(f *os.File) (*oggSource, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, err
	}
	if ch := dec.Channels(); ch != 1 && ch != 2 {
		return nil, fmt.Errorf("%w: %d channels", errUnsupportedFile, ch)
	}
	return &oggSource{f: f, dec: dec, samples: make([]float32, 4096)}, nil
}

func (s *oggSource) Format() (format.Kind, int, int) {
	return format.KindS16LE, s.dec.SampleRate(), s.dec.Channels()
}

func (s *oggSource) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		n, err := s.dec.Read(s.samples)
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
		s.pending = floatToS16(s.samples[:n])
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *oggSource) Close() error {
	return s.f.Close()
}

func floatToS16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		v = float32(math.Max(-1, math.Min(1, float64(v))))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return out
}
