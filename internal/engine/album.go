package engine

import (
	"path/filepath"
	"strconv"
)

// trackNumber 从文件名中取最多 8 位数字作为曲目号，
// 碰到结尾的 "mp3" 扩展名时停止
func trackNumber(name string) int {
	digits := make([]byte, 0, 8)
	for i := 0; i < len(name) && len(digits) < 8; i++ {
		if name[i:] == "mp3" {
			break
		}
		if c := name[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0
	}
	return n
}

// albumMatch 两个文件在同一目录且曲目号连续
func albumMatch(old, cur string) bool {
	if old == "" || cur == "" {
		return false
	}
	if filepath.Dir(old) != filepath.Dir(cur) {
		return false
	}
	oldTrack := trackNumber(filepath.Base(old))
	newTrack := trackNumber(filepath.Base(cur))
	return oldTrack > 0 && oldTrack+1 == newTrack
}
