// internal/journal/stat_unix.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

//go:build !windows

package journal

import (
	"fmt"
	"os"
	"syscall"
)

// nativeStatLine captures the file_stat2 "native" stat line: the
// portable fields plus owner/group/link-count from the raw syscall
// stat struct, when the platform exposes one.
func nativeStatLine(rec Record) string {
	// rec carries only the portable os.FileMode/ModTime/Size captured at
	// enumeration time; native fields are best-effort and sourced from a
	// fresh stat here rather than threading syscall.Stat_t through the
	// whole pipeline for a side log.
	fi, err := os.Lstat(rec.AbsPath)
	if err != nil {
		return fmt.Sprintf("%s:%d:%d:%s\n", rec.AbsPath, rec.Size, rec.ModTime.UnixNano(), rec.Mode)
	}
	sys, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Sprintf("%s:%d:%d:%s\n", rec.AbsPath, rec.Size, rec.ModTime.UnixNano(), rec.Mode)
	}
	return fmt.Sprintf("%s:%d:%d:%s:uid=%d:gid=%d:nlink=%d\n",
		rec.AbsPath, rec.Size, rec.ModTime.UnixNano(), rec.Mode,
		sys.Uid, sys.Gid, sys.Nlink)
}
