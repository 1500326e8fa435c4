package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "report.pdf", FileName("/home/user/docs/report.pdf"))
	assert.Equal(t, "report.pdf", FileName("report.pdf"))
}

func TestTimestampedCopyName(t *testing.T) {
	now := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)

	got := TimestampedCopyName("/home/user/docs/report.pdf", now)

	assert.Equal(t, "[05.03.26 14:30:00] report.pdf", got)
}

func TestMD5Hex(t *testing.T) {
	// Known vector: MD5("") = d41d8cd98f00b204e9800998ecf8427e
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", MD5Hex([]byte{}))

	a := MD5Hex([]byte("hello world"))
	b := MD5Hex([]byte("hello world"))
	assert.Equal(t, a, b, "hashing the same bytes twice must be idempotent")

	c := MD5Hex([]byte("hello world!"))
	assert.NotEqual(t, a, c)
}

func TestStartsWithRoot(t *testing.T) {
	assert.True(t, StartsWithRoot("/a/b/c.txt", "/a/b"))
	assert.True(t, StartsWithRoot("/a/b", "/a/b"))
	assert.False(t, StartsWithRoot("/a/bc/c.txt", "/a/b"))
	assert.False(t, StartsWithRoot("/x/y", "/a/b"))
}
