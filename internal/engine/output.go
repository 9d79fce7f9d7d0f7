package engine

import (
	"github.com/liuscraft/crossfade/internal/buffer"
	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
	"github.com/liuscraft/crossfade/internal/rate"
)

// openOutput 打开设备、分配环形缓冲区并启动输出 goroutine。调用时必须持有锁。
func (e *Engine) openOutput() error {
	if e.outputOpened {
		logging.Warnf("Engine: output already opened")
	}
	e.outputOpened = false
	e.outputFlushTime = 0
	e.outputOffset = 0
	e.outputWritten = 0
	e.outputStreampos = 0

	out, err := format.Output(e.cfg.Output.Rate)
	if err != nil {
		return err
	}
	e.outFormat = out

	inRate := e.inFormat.Rate
	if inRate == 0 {
		inRate = out.Rate
	}
	e.rate.Configure(inRate, out.Rate, rate.Quality(e.cfg.Output.Quality))

	logging.OutputOpened()
	if err := e.dev.Open(out); err != nil {
		e.err = err
		return err
	}

	ring, err := buffer.New(buffer.Sizes{
		Mix:     out.MsToBytes(e.cfg.MixSize()),
		Sync:    out.MsToBytes(e.cfg.SyncSizeMs),
		Preload: out.MsToBytes(e.cfg.PreloadMs),
	})
	if err != nil {
		e.dev.Close()
		e.err = err
		return err
	}
	ring.Reset(e.gapConfig())
	e.ring = ring
	logging.Infof("Engine: output %s opened, buffer %d ms", out, out.BytesToMs(ring.Size()))

	e.err = nil
	e.stopped = false
	done := make(chan struct{})
	e.workerDone = done
	e.outputOpened = true
	go e.run(done)
	return nil
}

// reopenOutput 关闭并重新打开设备。失败时释放缓冲区，输出 goroutine 随后退出。
func (e *Engine) reopenOutput(sync bool) bool {
	if sync {
		e.syncOutput()
	}
	logging.Debugf("Engine: reopening device")
	e.dev.Close()
	if err := e.dev.Open(e.outFormat); err != nil {
		logging.Errorf("Engine: %v: %v", ErrDeviceReopen, err)
		e.err = ErrDeviceReopen
		e.ring = nil
		e.outputOpened = false
		return false
	}

	e.outputFlushTime = 0
	e.outputWritten = 0
	e.outputStreampos = 0
	e.outputOffset = e.outFormat.BytesToMs(e.ring.Used()+e.ring.GapInProgress()) - e.writtenTime()
	e.ring.CompleteReopen()
	return true
}

// syncOutput 等待设备播完已写入的数据。设备输出时间超过超时仍不前进时放弃，
// 等待期间会释放锁。调用时必须持有锁。
func (e *Engine) syncOutput() {
	if !e.dev.BufferPlaying() {
		logging.Debugf("Engine: sync: nothing to do")
		return
	}

	wasClosed := !e.opened
	lastTime := e.dev.OutputTime()
	lastChange := e.now()
	stalled := false
	for !e.stopped && e.outputOpened && !(wasClosed && e.opened) && e.dev.BufferPlaying() {
		if t := e.dev.OutputTime(); t != lastTime {
			lastTime = t
			lastChange = e.now()
		} else if e.now().Sub(lastChange) >= e.syncTimeout {
			stalled = true
			break
		}
		e.mu.Unlock()
		e.sleep()
		e.mu.Lock()
	}

	switch {
	case stalled:
		logging.Warnf("Engine: sync: output time stalled at %d ms", lastTime)
	case e.stopped:
		logging.Debugf("Engine: sync: stopped")
	case wasClosed && e.opened:
		logging.Debugf("Engine: sync: reopened during sync")
	default:
		logging.Debugf("Engine: sync: done at %d ms", lastTime)
	}
}
