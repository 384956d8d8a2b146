//go:build darwin

package bsd

import "golang.org/x/sys/unix"

// extraWatchFflags adds NOTE_FUNLOCK, a Darwin-specific kqueue extension
// (spec.md §4.4's fflag set includes FUNLOCK) with no equivalent in
// FreeBSD/NetBSD/OpenBSD/DragonFly's sys/event.h.
const extraWatchFflags = unix.NOTE_FUNLOCK
