package cmd

import (
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoldenFealla/avplayer/internal/config"
	"github.com/GoldenFealla/avplayer/internal/queue"
)

func TestRootCommandNeedsFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs(nil)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	assert.Error(t, cmd.Execute())
}

func TestBindFlagsOverridesOnlyWhenSet(t *testing.T) {
	v := config.New()
	cmd := &cobra.Command{}
	cmd.Flags().Int("width", 0, "")
	cmd.Flags().String("queue-policy", "", "")
	bindFlags(v, cmd, map[string]string{
		"width":        "window.width",
		"queue-policy": "queue.policy",
	})

	require.NoError(t, cmd.Flags().Set("queue-policy", "drop-oldest"))
	v.Set("queue.capacity", 64)

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, 700, cfg.Window.Width)
	assert.Equal(t, queue.DropOldest, cfg.Queue.Policy)
	assert.Equal(t, 64, cfg.Queue.Capacity)
}
