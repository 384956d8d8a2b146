package main

const (
	exitCodeSuccess = 0
	exitCodeUsage   = 1
	exitCodeRuntime = 2
)
