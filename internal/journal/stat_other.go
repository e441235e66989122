// internal/journal/stat_other.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

//go:build windows

package journal

import "fmt"

func nativeStatLine(rec Record) string {
	return fmt.Sprintf("%s:%d:%d:%s\n", rec.AbsPath, rec.Size, rec.ModTime.UnixNano(), rec.Mode)
}
