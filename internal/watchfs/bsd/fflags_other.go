//go:build dragonfly || freebsd || netbsd || openbsd

package bsd

// extraWatchFflags is 0 on the non-Darwin BSDs: NOTE_FUNLOCK has no
// equivalent in their sys/event.h.
const extraWatchFflags = 0
