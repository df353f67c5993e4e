package ios

import (
	"path"

	"github.com/spf13/afero"
)

const defaultTempDir = "/tmp"

// TempDir returns the directory that relative file names refer to: $TMP,
// $TEMP, the first of ~/tmp, ~/temp, ~/.tmp under /home that exists, or /tmp.
func TempDir(fs afero.Fs, getenv func(string) string, username string) string {
	if dir := getenv("TMP"); dir != "" {
		return dir
	}
	if dir := getenv("TEMP"); dir != "" {
		return dir
	}
	if username != "" {
		for _, name := range []string{"tmp", "temp", ".tmp"} {
			dir := path.Join("/home", username, name)
			if ok, _ := afero.IsDir(fs, dir); ok {
				return dir
			}
		}
	}
	return defaultTempDir
}

// hostPath places names without a leading slash in the temporary directory.
func (m *Machine) hostPath(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name
	}
	return m.tempDir() + "/" + name
}

func (m *Machine) tempDir() string {
	return TempDir(m.fs, m.getenv, m.username)
}
