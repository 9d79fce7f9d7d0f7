// Package netsink 把输出的 PCM 通过 WebSocket 推送给远端。
//
// 每次打开设备建立一条连接。控制事件以 JSON 文本消息发送，
// 音频以二进制消息发送，内容为 16 位小端交错采样。
package netsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liuscraft/crossfade/internal/device"
	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// 控制事件类型
const (
	EventOpen   = "open"
	EventFlush  = "flush"
	EventPause  = "pause"
	EventResume = "resume"
	EventClose  = "close"
)

// Event 控制消息
type Event struct {
	Type     string `json:"type"`
	Format   string `json:"format,omitempty"`
	Rate     int    `json:"rate,omitempty"`
	Channels int    `json:"channels,omitempty"`
	TimeMs   int    `json:"time_ms,omitempty"`
}

// Config 推流配置
type Config struct {
	URL string
	// BufferMs 远端允许领先播放位置的时长
	BufferMs    int
	DialTimeout time.Duration
}

var errNotConnected = errors.New("netsink: not connected")

// Sink WebSocket 输出设备
type Sink struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	cfg     Config
	dialer  *websocket.Dialer

	conn   *websocket.Conn
	doneCh chan struct{}
	clock  *device.Clock
	format format.Format
	paused bool

	volL, volR int
}

var _ device.Device = (*Sink)(nil)

// New 创建推流设备
func New(cfg Config) *Sink {
	if cfg.BufferMs <= 0 {
		cfg.BufferMs = 500
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Sink{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		clock:  device.NewClock(true),
		volL:   100,
		volR:   100,
	}
}

func (s *Sink) Open(f format.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !f.Valid() || f.Kind.Is8Bit() {
		return device.ErrUnsupportedFormat
	}
	if s.conn != nil {
		s.closeLocked()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	defer cancel()
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	s.conn = conn
	s.format = f
	s.paused = false

	if err := s.sendEvent(Event{Type: EventOpen, Format: f.Kind.String(), Rate: f.Rate, Channels: f.Channels}); err != nil {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("send open event: %w", err)
	}
	s.startReceiver(conn)
	s.clock.Start(f.BPS)
	logging.Infof("NetSink: streaming %s to %s", f, s.cfg.URL)
	return nil
}

// startReceiver 读取并丢弃远端消息，以便处理 ping/close 控制帧
func (s *Sink) startReceiver(conn *websocket.Conn) {
	done := make(chan struct{})
	s.doneCh = done
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					logging.Debugf("NetSink: receiver stopped: %v", err)
				}
				return
			}
		}
	}()
}

func (s *Sink) sendEvent(ev Event) error {
	if s.conn == nil {
		return errNotConnected
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, payload)
	s.writeMu.Unlock()
	return err
}

func (s *Sink) Write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	data := p
	if s.volL != 100 || s.volR != 100 {
		data = make([]byte, len(p))
		copy(data, p)
		s.applyVolume(data)
	}
	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.BinaryMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		logging.Errorf("NetSink: write failed, dropping connection: %v", err)
		s.conn.Close()
		s.conn = nil
		return
	}
	s.clock.Advance(len(p))
}

func (s *Sink) applyVolume(p []byte) {
	lf := float32(s.volL) / 100
	rf := float32(s.volR) / 100
	for i := 0; i+1 < len(p); i += 2 {
		idx := i / 2
		f := lf
		if s.format.Channels == 2 && idx&1 == 1 {
			f = rf
		}
		format.PutSample(p, idx, int16(float32(format.Sample(p, idx))*f))
	}
}

func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Sink) closeLocked() {
	if s.conn == nil {
		return
	}
	if err := s.sendEvent(Event{Type: EventClose}); err != nil {
		logging.Warnf("NetSink: send close event: %v", err)
	}
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		logging.Debugf("NetSink: close handshake: %v", err)
	}
	s.writeMu.Unlock()

	select {
	case <-s.doneCh:
	case <-time.After(time.Second):
	}
	s.conn.Close()
	s.conn = nil
	logging.Infof("NetSink: closed after %d ms", s.clock.WrittenTime())
}

func (s *Sink) Flush(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Flush(ms)
	if err := s.sendEvent(Event{Type: EventFlush, TimeMs: ms}); err != nil && s.conn != nil {
		logging.Warnf("NetSink: send flush event: %v", err)
	}
}

func (s *Sink) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == paused {
		return
	}
	s.paused = paused
	s.clock.Pause(paused)
	ev := Event{Type: EventResume}
	if paused {
		ev.Type = EventPause
	}
	if err := s.sendEvent(ev); err != nil && s.conn != nil {
		logging.Warnf("NetSink: send %s event: %v", ev.Type, err)
	}
}

func (s *Sink) BufferFree() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.conn == nil {
		return 0
	}
	return max(s.format.MsToBytes(s.cfg.BufferMs)-s.clock.Pending(), 0)
}

func (s *Sink) BufferPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Playing()
}

func (s *Sink) OutputTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.OutputTime()
}

func (s *Sink) WrittenTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.WrittenTime()
}

func (s *Sink) Volume() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volL, s.volR
}

func (s *Sink) SetVolume(l, r int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volL = min(max(l, 0), 100)
	s.volR = min(max(r, 0), 100)
}
