package cmd

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/PsychicNoodles/discord-xiv-emotes/xivemotes"
	"github.com/stretchr/testify/assert"
)

func TestVersionCommand(t *testing.T) {
	originalVersion := xivemotes.Version
	originalCommitSHA := xivemotes.CommitSHA
	originalBuildTime := xivemotes.BuildTime

	t.Cleanup(
		func() {
			xivemotes.Version = originalVersion
			xivemotes.CommitSHA = originalCommitSHA
			xivemotes.BuildTime = originalBuildTime
		},
	)

	xivemotes.Version = "1.0.0"
	xivemotes.CommitSHA = "abc123"
	xivemotes.BuildTime = "2023-10-01T12:00:00Z"

	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	t.Cleanup(
		func() {
			os.Stdout = orig
		},
	)

	// Capture the output
	versionCmd.Run(nil, nil)

	_ = w.Close()

	out, _ := io.ReadAll(r)
	output := string(out)
	t.Logf("output: %s", string(out))
	expected := fmt.Sprintf(
		"version=%s commit=%s built: %s",
		xivemotes.Version,
		xivemotes.CommitSHA,
		xivemotes.BuildTime,
	)
	assert.Equal(t, expected, output)
}
