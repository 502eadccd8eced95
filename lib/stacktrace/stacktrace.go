// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package stacktrace turns Go call stacks into the wire Frame model.
//
// Two sources feed it: Capture walks the calling goroutine's live
// stack through the runtime, and Parse extracts frames from textual
// stacks (recovered panic output, debug.Stack). Both are best-effort;
// an unparseable stack yields an empty frame list rather than an
// error, because an exception report with no frames is still worth
// delivering.
package stacktrace

import (
	"bufio"
	"runtime"
	"strconv"
	"strings"

	"github.com/heliohq/helio-go/lib/schema/event"
)

// maxDepth bounds captured stacks. Deeper frames are truncated; 64
// levels is more context than any report needs.
const maxDepth = 64

// sdkPrefixes name the packages trimmed from captured stacks: the
// capture machinery itself and the public client surface. The
// trailing dot keeps sibling packages (and external _test packages)
// out of the match.
var sdkPrefixes = []string{
	"github.com/heliohq/helio-go/lib/stacktrace.",
	"github.com/heliohq/helio-go.",
}

// Capture returns the calling goroutine's stack as frames, innermost
// first. skip counts additional caller frames to drop beyond Capture
// itself; SDK-internal frames are always dropped so reports start at
// application code. Column is always zero: the runtime does not track
// columns.
func Capture(skip int) []event.Frame {
	pcs := make([]uintptr, maxDepth)
	// +2 skips runtime.Callers and Capture itself.
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var result []event.Frame
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !sdkInternal(frame.Function) {
			result = append(result, event.Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}
	return result
}

func sdkInternal(function string) bool {
	for _, prefix := range sdkPrefixes {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}

// Parse extracts frames from a textual Go stack, the format produced
// by debug.Stack and uncaught panics:
//
//	goroutine 7 [running]:
//	main.work(0x2)
//		/src/app/main.go:21 +0x45
//	main.main()
//		/src/app/main.go:10 +0x1a
//
// Function lines pair with the indented file:line location that
// follows them. Lines that do not fit the shape are skipped, so a
// truncated or foreign stack degrades to fewer frames, never to an
// error.
func Parse(stack string) []event.Frame {
	var result []event.Frame
	var pending string
	scanner := bufio.NewScanner(strings.NewReader(stack))

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		// Location lines are indented with a tab.
		if strings.HasPrefix(line, "\t") {
			if pending == "" {
				continue
			}
			file, lineNumber, ok := parseLocation(strings.TrimPrefix(line, "\t"))
			if ok {
				result = append(result, event.Frame{
					Function: pending,
					File:     file,
					Line:     lineNumber,
				})
			}
			pending = ""
			continue
		}

		// Header and spacer lines between goroutines.
		if strings.HasPrefix(line, "goroutine ") {
			pending = ""
			continue
		}

		pending = parseFunction(line)
	}

	return result
}

// parseFunction strips the argument list from a stack function line:
// "main.work(0x2)" becomes "main.work". "created by X in goroutine N"
// annotations reduce to the spawning function.
func parseFunction(line string) string {
	line = strings.TrimPrefix(line, "created by ")
	if i := strings.Index(line, " in goroutine "); i > 0 {
		line = line[:i]
	}
	if i := strings.LastIndex(line, "("); i > 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// parseLocation splits "/src/app/main.go:21 +0x45" into the file path
// and line number.
func parseLocation(location string) (string, int, bool) {
	// Drop the " +0x..." program counter offset when present.
	if i := strings.LastIndex(location, " +0x"); i >= 0 {
		location = location[:i]
	}

	colon := strings.LastIndex(location, ":")
	if colon <= 0 {
		return "", 0, false
	}
	lineNumber, err := strconv.Atoi(location[colon+1:])
	if err != nil {
		return "", 0, false
	}
	return location[:colon], lineNumber, true
}
