package buffer

// endIndex 已用数据末尾（不含）在缓冲区中的位置，范围 1..size
func (r *Ring) endIndex() int {
	return (r.rd+r.used-1)%r.size + 1
}

// KillTrailingGap 从数据末尾向前删除最多 length 字节的静音帧，
// 遇到任一声道幅度不低于 level 的帧即停止。返回删除的字节数。
func (r *Ring) KillTrailingGap(length, level int) int {
	length = min(length&^3, r.used)
	r.gap.killed = 0
	for length > 0 {
		end := r.endIndex()
		blen := min(length, end)
		idx := 0
		for idx < blen {
			pos := end - idx - FrameSize
			if abs16(r.sample(pos)) >= level || abs16(r.sample(pos+2)) >= level {
				break
			}
			idx += FrameSize
		}
		r.used -= idx
		r.gap.killed += idx
		if idx < blen {
			break
		}
		length -= blen
	}
	return r.gap.killed
}

// SkipToPreviousCrossing 从数据末尾向前越过两个完整的左声道半周期，
// 使结尾落在过零点上。跳过的字节计入 GapKilled。
func (r *Ring) SkipToPreviousCrossing() int {
	r.gap.skipped = 0
	for crossing := 0; crossing < 4; crossing++ {
		wantPositive := crossing&1 == 1
		for r.used > 0 {
			end := r.endIndex()
			blen := min(r.used, end)
			idx := 0
			for idx < blen {
				left := r.sample(end - idx - FrameSize)
				if (left > 0) != wantPositive {
					break
				}
				idx += FrameSize
			}
			r.used -= idx
			r.gap.skipped += idx
			if idx < blen {
				break
			}
		}
	}
	r.gap.killed += r.gap.skipped
	return r.gap.skipped
}
