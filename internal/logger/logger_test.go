package logger

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

func writeAndClose(t *testing.T, w io.WriteCloser, line string) {
	t.Helper()
	if w == nil {
		return
	}
	_, err := io.WriteString(w, line)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestChildWriters(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "children", "logs")

	tests := []struct {
		name        string
		file        FileConfig
		child       string
		wantOut     string
		wantErr     string
		wantDirMade string
	}{
		{
			name:        "dir derives per-child files",
			file:        FileConfig{Dir: nested},
			child:       "api-1",
			wantOut:     filepath.Join(nested, "api-1.stdout.log"),
			wantErr:     filepath.Join(nested, "api-1.stderr.log"),
			wantDirMade: nested,
		},
		{
			name:    "explicit paths ignore the child name",
			file:    FileConfig{StdoutPath: filepath.Join(dir, "shared.out"), StderrPath: filepath.Join(dir, "shared.err")},
			child:   "api-2",
			wantOut: filepath.Join(dir, "shared.out"),
			wantErr: filepath.Join(dir, "shared.err"),
		},
		{
			name:    "explicit stdout with dir-derived stderr",
			file:    FileConfig{Dir: dir, StdoutPath: filepath.Join(dir, "custom.out")},
			child:   "cron",
			wantOut: filepath.Join(dir, "custom.out"),
			wantErr: filepath.Join(dir, "cron.stderr.log"),
		},
		{
			name:    "stderr only",
			file:    FileConfig{StderrPath: filepath.Join(dir, "only.err")},
			child:   "x",
			wantErr: filepath.Join(dir, "only.err"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{File: tt.file}
			require.True(t, tt.file.Enabled())
			out, errW, err := cfg.ProcessWriters(tt.child)
			require.NoError(t, err)

			if tt.wantDirMade != "" {
				assert.DirExists(t, tt.wantDirMade)
			}
			if tt.wantOut == "" {
				assert.Nil(t, out)
			} else {
				require.NotNil(t, out)
				assert.Equal(t, tt.wantOut, out.(*lj.Logger).Filename)
			}
			if tt.wantErr == "" {
				assert.Nil(t, errW)
			} else {
				require.NotNil(t, errW)
				assert.Equal(t, tt.wantErr, errW.(*lj.Logger).Filename)
			}

			writeAndClose(t, out, "started\n")
			writeAndClose(t, errW, "boom\n")
			for _, p := range []string{tt.wantOut, tt.wantErr} {
				if p != "" {
					b, err := os.ReadFile(p)
					require.NoError(t, err)
					assert.NotEmpty(t, b)
				}
			}
		})
	}
}

func TestChildWritersDisabled(t *testing.T) {
	var cfg Config
	assert.False(t, cfg.File.Enabled())
	out, errW, err := cfg.ProcessWriters("idle")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, errW)
}

func TestChildWritersRotation(t *testing.T) {
	dir := t.TempDir()
	defaults := FileConfig{StdoutPath: filepath.Join(dir, "a"), StderrPath: filepath.Join(dir, "b")}
	custom := defaults
	custom.MaxSizeMB, custom.MaxBackups, custom.MaxAgeDays, custom.Compress = 2, 5, 30, true

	out, errW, err := Config{File: defaults}.ProcessWriters("svc")
	require.NoError(t, err)
	for _, w := range []io.WriteCloser{out, errW} {
		l := w.(*lj.Logger)
		assert.Equal(t, DefaultMaxSizeMB, l.MaxSize)
		assert.Equal(t, DefaultMaxBackups, l.MaxBackups)
		assert.Equal(t, DefaultMaxAgeDays, l.MaxAge)
		assert.False(t, l.Compress)
	}

	out, errW, err = Config{File: custom}.ProcessWriters("svc")
	require.NoError(t, err)
	for _, w := range []io.WriteCloser{out, errW} {
		l := w.(*lj.Logger)
		assert.Equal(t, 2, l.MaxSize)
		assert.Equal(t, 5, l.MaxBackups)
		assert.Equal(t, 30, l.MaxAge)
		assert.True(t, l.Compress)
	}
}

func TestChildWritersBadDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	_, _, err := Config{File: FileConfig{Dir: filepath.Join(blocker, "sub")}}.ProcessWriters("x")
	assert.Error(t, err)
}
