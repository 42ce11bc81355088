package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	prev := version
	t.Cleanup(func() { version = prev })

	for _, v := range []string{"dev", "1.4.0-rc.1"} {
		SetVersion(v)

		out, err := execute("", "version")

		require.NoError(t, err)
		assert.Equal(t, "docqa version "+v+"\n", out)
	}
}
