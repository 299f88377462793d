package cli_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/larder/internal/cli"
	"github.com/agentoven/larder/pkg/models"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cli.RootCmd.SetOut(&out)
	cli.RootCmd.SetArgs(args)
	require.NoError(t, cli.RootCmd.Execute())
	return out.String()
}

func TestCheckSQL(t *testing.T) {
	out := run(t, "check-sql", "--format", "text", "UPDATE items SET quantity = $1 WHERE id = $2")
	assert.Equal(t, "OK: update (mutation: true)\n", out)
}

func TestEngrams_LearnThenList(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LARDER_SNAPSHOT_PATH", filepath.Join(t.TempDir(), "larder.json"))

	out := run(t, "engrams", "learn", "--format", "json",
		"--pattern", "got any {item} left",
		"--command", "check",
		"--map", "itemName={item}",
		"--example", "got any cheese left",
		"--extract", "item=cheese",
	)
	var learned models.LearnedUtterance
	require.NoError(t, json.Unmarshal([]byte(out), &learned))
	assert.Equal(t, "got any {item} left", learned.Pattern)
	assert.Equal(t, 0, learned.TTLLevel)

	out = run(t, "engrams", "list", "--format", "json")
	var list []models.LearnedUtterance
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, learned.ID, list[0].ID)

	out = run(t, "engrams", "sweep", "--format", "text")
	assert.Equal(t, "Removed 0 expired utterance(s).\n", out)
}
