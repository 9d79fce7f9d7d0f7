package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/liuscraft/crossfade/internal/config"
	"github.com/liuscraft/crossfade/internal/device"
	"github.com/liuscraft/crossfade/internal/device/netsink"
	"github.com/liuscraft/crossfade/internal/device/speaker"
	"github.com/liuscraft/crossfade/internal/engine"
	"github.com/liuscraft/crossfade/internal/logging"
)

const (
	pollInterval = 10 * time.Millisecond
	readChunk    = 16 * 1024
	drainTimeout = 10 * time.Second
)

// playlist 按顺序播放文件，实现 engine.Host
type playlist struct {
	mu      sync.Mutex
	files   []string
	index   int
	playing bool
}

func newPlaylist(files []string) *playlist {
	return &playlist{files: files, index: -1, playing: true}
}

func (p *playlist) CurrentFilename() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index < 0 || p.index >= len(p.files) {
		return ""
	}
	return p.files[p.index]
}

func (p *playlist) InputPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// next 前进到下一首，没有更多曲目时返回 false
func (p *playlist) next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.index+1 >= len(p.files) {
		return "", false
	}
	p.index++
	return p.files[p.index], true
}

func (p *playlist) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// newDevice 按配置创建输出设备
func newDevice(cfg *config.GlobalConfig) device.Device {
	switch cfg.Output.Device {
	case config.DeviceNull:
		return device.NewNull(device.NullConfig{RealTime: true})
	case config.DeviceWAV:
		return device.NewWAV(cfg.Output.WAVPath)
	case config.DeviceWebSocket:
		return netsink.New(netsink.Config{URL: cfg.Output.URL})
	default:
		return speaker.New(speaker.DefaultConfig())
	}
}

// player 把播放列表逐首送入引擎
type player struct {
	eng  *engine.Engine
	list *playlist
	poll time.Duration
}

func (p *player) run(ctx context.Context) error {
	defer p.finish()

	for {
		file, ok := p.list.next()
		if !ok {
			return nil
		}
		if err := p.playFile(ctx, file); err != nil {
			if errors.Is(err, engine.ErrDeviceOpen) || ctx.Err() != nil {
				return err
			}
			logging.Warnf("Player: skipping %s: %v", file, err)
		}
	}
}

func (p *player) playFile(ctx context.Context, file string) error {
	src, err := openSource(file)
	if err != nil {
		return err
	}
	defer src.Close()

	kind, rate, channels := src.Format()
	if err := p.eng.Open(kind, rate, channels); err != nil {
		return err
	}
	logging.Infof("Player: playing %s (%s %d Hz, %d ch)", file, kind, rate, channels)

	err = p.feed(ctx, src)
	if err == nil {
		// 等待暂停静音或重开结束，之后 Close 按自动换曲处理
		err = p.waitWhile(ctx, p.eng.BufferPlaying)
	}
	p.eng.Close()
	return err
}

// feed 按引擎可写空间读取解码数据，每次写入按 4 字节对齐
func (p *player) feed(ctx context.Context, src io.Reader) error {
	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		free := min(p.eng.BufferFree(), len(buf)) &^ 3
		if free <= 0 {
			p.sleep(ctx)
			continue
		}
		n, err := io.ReadFull(src, buf[:free])
		if n > 0 {
			p.eng.Write(buf[:n])
		}
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		case err != nil:
			return err
		}
	}
}

// finish 通知引擎输入已结束，等待设备播完后关闭
func (p *player) finish() {
	p.list.stop()
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	err := p.waitWhile(ctx, func() bool { return p.eng.State() != engine.StateClosed })
	if err != nil {
		logging.Warnf("Player: output still draining after %v", drainTimeout)
	}
	p.eng.Shutdown()
}

func (p *player) waitWhile(ctx context.Context, cond func() bool) error {
	for cond() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.sleep(ctx)
	}
	return nil
}

func (p *player) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.poll):
	}
}
