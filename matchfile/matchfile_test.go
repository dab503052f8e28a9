package matchfile_test

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uevmon/uevmon/matchfile"
	"github.com/uevmon/uevmon/uevent"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()

	fp := path.Join(t.TempDir(), "matches.toml")
	require.NoError(t, os.WriteFile(fp, []byte(contents), 0o644))

	return fp
}

func TestParse(t *testing.T) {
	fp := writeFile(t, `
[[match]]
subsystem = "block"
devtype = "disk"

[[match]]
subsystem = "net"

[[match]]
tag = "systemd"
`)

	f, err := matchfile.Parse(fp)
	require.NoError(t, err)

	require.Equal(t, []matchfile.Match{
		{Subsystem: "block", Devtype: "disk"},
		{Subsystem: "net"},
		{Tag: "systemd"},
	}, f.Matches)
}

func TestParseEmptyRule(t *testing.T) {
	fp := writeFile(t, "[[match]]\n")

	_, err := matchfile.Parse(fp)
	require.ErrorIs(t, err, matchfile.ErrEmptyRule)
}

func TestParseDevtypeWithoutSubsystem(t *testing.T) {
	fp := writeFile(t, `
[[match]]
devtype = "disk"
`)

	_, err := matchfile.Parse(fp)
	require.Error(t, err)
}

func TestParseMissingFile(t *testing.T) {
	_, err := matchfile.Parse(path.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	mon, err := uevent.NewMonitor(zap.NewNop().Sugar(), "")
	if err != nil {
		t.Skipf("cannot create uevent socket: %v", err)
	}
	defer mon.Close()

	fp := writeFile(t, `
[[match]]
subsystem = "block"
devtype = "disk"

[[match]]
tag = "systemd"
`)

	f, err := matchfile.Parse(fp)
	require.NoError(t, err)

	require.NoError(t, f.Apply(mon))
	require.NoError(t, mon.FilterUpdate())
}
