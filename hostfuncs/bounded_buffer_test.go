package hostfuncs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBuffer_Write(t *testing.T) {
	tests := []struct {
		name      string
		writes    []string
		want      string
		limit     int
		truncated bool
	}{
		{"within limit", []string{"hello"}, "hello", 100, false},
		{"exactly at limit", []string{"hello"}, "hello", 5, false},
		{"truncates at limit", []string{"hello world"}, "hello worl", 10, true},
		{"multiple writes truncate", []string{"12345", "67890", "XXXXX"}, "1234567890", 10, true},
		{"partial write at boundary", []string{"12345", "67890"}, "12345678", 8, true},
		{"cut keeps runes whole", []string{"abéé"}, "abé", 5, true},
		{"zero limit", []string{"x"}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBoundedBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := buf.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n, "writes always report full length")
			}
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, tt.truncated, buf.Truncated)
			assert.Equal(t, len(tt.want), buf.Len())
			assert.Equal(t, tt.want, string(buf.Bytes()))
		})
	}
}

func TestBoundedBuffer_Reset(t *testing.T) {
	buf := NewBoundedBuffer(5)
	_, _ = buf.Write([]byte("hello world"))
	require.True(t, buf.Truncated)

	buf.Reset()

	assert.False(t, buf.Truncated)
	assert.Zero(t, buf.Len())
	assert.Empty(t, buf.String())
}
