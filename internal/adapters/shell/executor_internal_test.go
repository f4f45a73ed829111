package shell

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveEnvironment_Priority(t *testing.T) {
	sys := []string{"PATH=/usr/bin", "CC=cc", "HOME=/home/builder"}
	extra := []string{"PATH=/opt/nasm/bin", "CC=gcc-9"}
	cmd := map[string]string{"CC": "clang"}

	env := resolveEnvironment(sys, extra, cmd)

	assert.Equal(t, []string{
		"CC=clang",
		"HOME=/home/builder",
		"PATH=/opt/nasm/bin" + string(os.PathListSeparator) + "/usr/bin",
	}, env)
}

func TestResolveEnvironment_NoSystemPath(t *testing.T) {
	env := resolveEnvironment(nil, []string{"PATH=/opt/nasm/bin", "malformed"}, nil)
	assert.Equal(t, []string{"PATH=/opt/nasm/bin"}, env)
}

func TestTailBuffer(t *testing.T) {
	tail := &tailBuffer{max: 8}
	_, _ = tail.Write([]byte("0123456789"))
	_, _ = tail.Write([]byte("ab\n"))
	assert.Equal(t, "56789ab", tail.String())
	assert.True(t, strings.HasSuffix(string(tail.buf), "\n"))
	assert.Len(t, tail.buf, 8)
}
