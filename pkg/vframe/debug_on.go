//go:build vframedebug

package vframe

const debugChecks = true
