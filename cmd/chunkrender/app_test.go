// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/joeycumines/go-asyncrender/daemon"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp(strings.NewReader(stdin), &out, &errOut)
	err = app.Run(context.Background(), append([]string{"chunkrender"}, args...))
	return out.String(), errOut.String(), err
}

func decodeLines(t *testing.T, s string) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var v map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &v), line)
		lines = append(lines, v)
	}
	return lines
}

func TestRender_boundedRange(t *testing.T) {
	stdout, _, err := runApp(t, "", "render", "--source", "5", "--per-chunk", "2", "--tree")
	require.NoError(t, err)

	lines := decodeLines(t, stdout)
	require.Len(t, lines, 3)
	assert.Equal(t, []any{0.0, 1.0}, lines[0]["elements"])
	assert.Equal(t, "<li>0</li><li>1</li>", lines[0]["html"])
	assert.Equal(t, []any{4.0}, lines[2]["elements"])
	assert.Equal(t, true, lines[2]["done"])
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), "<ul><li>0</li><li>1</li><li>2</li><li>3</li><li>4</li></ul>"), stdout)
}

func TestRender_unboundedFiltered(t *testing.T) {
	stdout, stderr, err := runApp(t, "", "--log-level", "info", "render", "--source", "true", "--per-chunk", "4", "--filter-lt", "6", "--tick-mode", "microtask")
	require.NoError(t, err)

	lines := decodeLines(t, stdout)
	require.Len(t, lines, 2)
	assert.Equal(t, []any{0.0, 1.0, 2.0, 3.0}, lines[0]["elements"])
	assert.Equal(t, []any{4.0, 5.0}, lines[1]["elements"])
	assert.Contains(t, stderr, `"msg":"chunkrender: done"`)
}

func TestRender_stdin(t *testing.T) {
	stdout, _, err := runApp(t, "alpha\n<beta>\n", "render", "--source", "-", "--raf", "--tree", "--tick-mode", "timeout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "<ul><li>alpha</li><li>&lt;beta&gt;</li></ul>")
}

func TestRender_invalidFlags(t *testing.T) {
	_, _, err := runApp(t, "", "render", "--tick-mode", "never")
	assert.ErrorContains(t, err, `unknown tick mode "never"`)

	_, _, err = runApp(t, "", "--log-level", "loud", "render")
	assert.ErrorContains(t, err, "failed to parse log level")

	_, _, err = runApp(t, "", "render", "--budget", "0")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for _, level := range []logiface.Level{logiface.LevelDisabled, logiface.LevelError, logiface.LevelInformational, logiface.LevelTrace} {
		got, err := parseLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, got)
	}
}

func TestParseTickMode(t *testing.T) {
	for _, mode := range []daemon.TickMode{daemon.TickAnimationFrame, daemon.TickTimeout, daemon.TickMicrotask} {
		got, err := parseTickMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, 12, parseSource("12", nil))
	assert.Equal(t, true, parseSource("true", nil))
	assert.Equal(t, false, parseSource("false", nil))
	assert.Equal(t, "héllo", parseSource("héllo", nil))
}
