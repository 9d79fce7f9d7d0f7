package device

import "time"

// Clock 根据写入的字节数推算设备的输出位置。
//
// 非实时模式下数据写入即视为播放完成；实时模式下按墙钟时间推进，
// 输出位置不超过已写入位置。Clock 不是并发安全的。
type Clock struct {
	realTime bool
	now      func() time.Time

	bps     int
	base    int
	written int64

	start    time.Time
	paused   bool
	pausedAt time.Time
}

// NewClock 创建时钟
func NewClock(realTime bool) *Clock {
	return &Clock{realTime: realTime, now: time.Now}
}

// Start 设备打开时重置，bps 为每秒字节数
func (c *Clock) Start(bps int) {
	c.bps = bps
	c.base = 0
	c.written = 0
	c.paused = false
	c.start = c.now()
}

// Advance 记录写入了 n 字节
func (c *Clock) Advance(n int) {
	if n <= 0 || c.bps <= 0 {
		return
	}
	if c.realTime && !c.paused && c.elapsed() >= c.writtenMs() {
		// 欠载后从当前时刻重新计时
		c.start = c.now().Add(-time.Duration(c.writtenMs()) * time.Millisecond)
	}
	c.written += int64(n)
}

// Flush 丢弃未播放的数据，输出位置设为 ms
func (c *Clock) Flush(ms int) {
	c.base = ms
	c.written = 0
	c.start = c.now()
	if c.paused {
		c.pausedAt = c.start
	}
}

// Pause 暂停或恢复计时
func (c *Clock) Pause(p bool) {
	if p == c.paused {
		return
	}
	now := c.now()
	if p {
		c.pausedAt = now
	} else {
		c.start = c.start.Add(now.Sub(c.pausedAt))
	}
	c.paused = p
}

func (c *Clock) writtenMs() int {
	if c.bps <= 0 {
		return 0
	}
	return int(c.written * 1000 / int64(c.bps))
}

func (c *Clock) elapsed() int {
	end := c.now()
	if c.paused {
		end = c.pausedAt
	}
	return int(end.Sub(c.start) / time.Millisecond)
}

func (c *Clock) playedMs() int {
	w := c.writtenMs()
	if !c.realTime {
		return w
	}
	return min(c.elapsed(), w)
}

// WrittenTime 已写入数据对应的时间 (ms)
func (c *Clock) WrittenTime() int {
	return c.base + c.writtenMs()
}

// OutputTime 已播放数据对应的时间 (ms)
func (c *Clock) OutputTime() int {
	return c.base + c.playedMs()
}

// Pending 已写入但尚未播放的字节数
func (c *Clock) Pending() int {
	if !c.realTime || c.bps <= 0 {
		return 0
	}
	played := int64(c.playedMs()) * int64(c.bps) / 1000
	return int(max(c.written-played, 0))
}

// Playing 是否还有未播放的数据
func (c *Clock) Playing() bool {
	return c.Pending() > 0
}
