/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/Seednode/partycursor/cursor"
	"github.com/Seednode/partycursor/interp"
)

type placedCursor struct {
	id cursor.PeerID
	interp.Cursor
}

// sortedCursors orders a frame by peer id so output is stable.
func sortedCursors(frame map[cursor.PeerID]interp.Cursor) []placedCursor {
	out := make([]placedCursor, 0, len(frame))
	for id, c := range frame {
		out = append(out, placedCursor{id: id, Cursor: c})
	}
	slices.SortFunc(out, func(a, b placedCursor) int {
		return cmp.Compare(a.id, b.id)
	})

	return out
}

func describeFrame(frame map[cursor.PeerID]interp.Cursor) string {
	if len(frame) == 0 {
		return "no remote cursors"
	}

	parts := make([]string, 0, len(frame))
	for _, c := range sortedCursors(frame) {
		parts = append(parts, fmt.Sprintf("%d %q at (%.0f, %.0f)", c.id, c.Name, c.ScreenX, c.ScreenY))
	}

	return strings.Join(parts, ", ")
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
