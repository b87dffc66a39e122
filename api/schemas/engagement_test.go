package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvocationRequestExecutable(t *testing.T) {
	base := InvocationRequest{ID: "1", Action: "nmap_scan", Command: "nmap 10.10.10.5"}
	assert.True(t, base.Executable())

	internal := base
	internal.Internal = true
	assert.False(t, internal.Executable())

	unsupported := base
	unsupported.Unsupported = true
	assert.False(t, unsupported.Executable())

	invalid := base
	invalid.ValidationError = "missing url"
	assert.False(t, invalid.Executable())

	empty := base
	empty.Command = ""
	assert.False(t, empty.Executable())
}
