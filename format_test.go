package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "hello", 10, "hello"},
		{"exactly max", "hello", 5, "hello"},
		{"cut with ellipsis", "hello world", 8, "hello w…"},
		{"max one", "hello", 1, "h"},
		{"empty", "", 5, ""},
		{"multibyte runes", "héllo wörld", 8, "héllo w…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.max))
		})
	}
}

func TestFormatSender(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"name and address", `"Alice Smith" <alice@example.com>`, "Alice Smith"},
		{"bare address", "bob@example.com", "bob@example.com"},
		{"address in brackets", "<carol@example.com>", "carol@example.com"},
		{"unparseable passthrough", "not an address at all <<", "not an address at all <<"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSender(tt.in))
		})
	}
}

func TestFormatDate(t *testing.T) {
	t.Run("current year shows time", func(t *testing.T) {
		raw := fmt.Sprintf("Mon, 2 Jan %d 15:04:05 +0000", time.Now().Year())
		got := formatDate(raw)

		assert.Contains(t, got, "Jan")
		assert.Contains(t, got, "15:04")
	})

	t.Run("past year shows year", func(t *testing.T) {
		got := formatDate("Tue, 3 Mar 2015 10:00:00 +0000")

		assert.Equal(t, "Mar  3  2015", got)
	})

	t.Run("unparseable truncated passthrough", func(t *testing.T) {
		got := formatDate("sometime last tuesday, allegedly")

		assert.LessOrEqual(t, len([]rune(got)), 16)
		assert.True(t, strings.HasPrefix(got, "sometime"))
	})
}

func TestPrintTable_PipedOutputIsTSV(t *testing.T) {
	// Tests never run with stdout on a terminal, so printTable takes the
	// tab-separated branch.
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"1", "alpha"},
		{"2", "beta"},
	})

	assert.Equal(t, "1\talpha\n2\tbeta\n", buf.String())
}

func TestPrintTable_Empty(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "NAME"}, nil)

	assert.Empty(t, buf.String())
}
