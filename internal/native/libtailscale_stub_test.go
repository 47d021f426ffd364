//go:build !cgo || !libtailscale

package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLib_Unlinked 测试未链接原生库时的行为
func TestLib_Unlinked(t *testing.T) {
	lib := Lib()

	assert.Equal(t, InvalidHandle, lib.New())

	msg, code, err := ReadText(16, func(buf []byte) int { return lib.ErrMsg(InvalidHandle, buf) })
	require.NoError(t, err)
	assert.Equal(t, CodeOK, code)
	assert.Contains(t, msg, "libtailscale")
}
