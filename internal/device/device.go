// Package device 定义输出设备接口，并提供空设备和 WAV 文件设备。
//
// 设备方法由引擎在持有自身锁时调用，不会被两个 goroutine 同时调用；
// 实现内部仍各自加锁，以便测试和命令行程序直接查询状态。
package device

import (
	"errors"

	"github.com/liuscraft/crossfade/internal/format"
)

// ErrUnsupportedFormat 设备不支持该输出格式
var ErrUnsupportedFormat = errors.New("device: unsupported format")

// Device 下游输出设备
type Device interface {
	Open(f format.Format) error
	Write(p []byte)
	Close()
	// Flush 丢弃设备缓冲并把输出时间设为 ms
	Flush(ms int)
	Pause(paused bool)
	// BufferFree 设备当前可接受的字节数
	BufferFree() int
	// BufferPlaying 设备中是否还有未播放完的数据
	BufferPlaying() bool
	OutputTime() int
	WrittenTime() int
	Volume() (l, r int)
	SetVolume(l, r int)
}

// DefaultBufferFree 没有硬件缓冲的设备报告的可写空间
const DefaultBufferFree = 64 * 1024

func checkFormat(f format.Format) error {
	if !f.Valid() || f.Kind.Is8Bit() {
		return ErrUnsupportedFormat
	}
	return nil
}
