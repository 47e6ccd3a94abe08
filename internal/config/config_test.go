package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/scenegraph/internal/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`version: "1"`))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultDecodeWorkers, cfg.Session.DecodeWorkers)
	assert.Equal(t, config.DefaultQueueDepth, cfg.Session.QueueDepth)
	assert.Equal(t, config.DefaultImportTimeoutMs, cfg.Session.ImportTimeoutMs)
	assert.False(t, cfg.Merge.StrictKinds)
	assert.Empty(t, cfg.Kinds)
}

func TestParse_Kinds(t *testing.T) {
	cfg, err := config.Parse([]byte(`
version: "1"
session:
  decode_workers: 2
kinds:
  - tag: Model
    capabilities: [hierarchy]
    roles:
      - {name: parent, max: 1}
      - {name: display, unique: true}
`))
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))

	assert.Equal(t, 2, cfg.Session.DecodeWorkers)
	require.Len(t, cfg.Kinds, 1)
	assert.Equal(t, []config.RoleDef{{Name: "parent", Max: 1}, {Name: "display", Unique: true}}, cfg.Kinds[0].Roles)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     config.Config
		wantErr []string
	}{
		{name: "valid", cfg: config.Config{Version: "1"}},
		{name: "missing version", cfg: config.Config{}, wantErr: []string{"version is required"}},
		{
			name: "negative tuning",
			cfg:  config.Config{Version: "1", Session: config.SessionConf{DecodeWorkers: -1, QueueDepth: -1}},
			wantErr: []string{"decode_workers must not be negative", "queue_depth must not be negative"},
		},
		{
			name:    "bad tag",
			cfg:     config.Config{Version: "1", Kinds: []config.KindDef{{Tag: "Model2"}, {Tag: ""}}},
			wantErr: []string{`tag "Model2" must start with a letter`, "kinds[1]: tag is required"},
		},
		{
			name:    "duplicate kind",
			cfg:     config.Config{Version: "1", Kinds: []config.KindDef{{Tag: "Model"}, {Tag: "Model"}}},
			wantErr: []string{`duplicate kind "Model"`},
		},
		{
			name: "bad roles",
			cfg: config.Config{Version: "1", Kinds: []config.KindDef{{Tag: "Model", Roles: []config.RoleDef{
				{Name: "parent"}, {Name: "parent"}, {Name: ""}, {Name: "display", Max: -2},
			}}}},
			wantErr: []string{`role "parent" declared twice`, "roles[2]: name is required", `role "display" max must not be negative`},
		},
		{
			name:    "strict without kinds",
			cfg:     config.Config{Version: "1", Merge: config.MergeConf{StrictKinds: true}},
			wantErr: []string{"strict_kinds requires a kinds table"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := config.Validate(&tc.cfg)
			if len(tc.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tc.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoader_ReloadNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenegraph.yaml")
	writeConfig(t, path, "version: \"1\"\n")

	l, err := config.NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())
	assert.False(t, l.Config().Merge.StrictKinds)

	var got []*config.Config
	l.OnChange(func(c *config.Config) { got = append(got, c) })

	writeConfig(t, path, "version: \"1\"\nmerge:\n  strict_kinds: true\nkinds:\n  - tag: Scan\n")
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.True(t, cfg.Merge.StrictKinds)
	assert.Same(t, cfg, l.Config())
	require.Len(t, got, 1)
	assert.Same(t, cfg, got[0])
}

func TestLoader_BadFileKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenegraph.yaml")
	writeConfig(t, path, "version: \"1\"\n")
	l, err := config.NewLoader(path)
	require.NoError(t, err)
	before := l.Config()

	writeConfig(t, path, "version: [\n")
	_, err = l.Reload()
	assert.Error(t, err)
	assert.Same(t, before, l.Config())

	_, err = config.NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoader_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenegraph.yaml")
	writeConfig(t, path, "version: \"1\"\n")
	l, err := config.NewLoader(path)
	require.NoError(t, err)

	changed := make(chan *config.Config, 16)
	l.OnChange(func(c *config.Config) {
		select {
		case changed <- c:
		default:
		}
	})

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	writeConfig(t, path, "version: \"2\"\n")

	// A write can surface as several events; wait for the one with the new content.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Version == "2" {
				return
			}
		case <-deadline:
			t.Fatal("no reload after file write")
		}
	}
}
