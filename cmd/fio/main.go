// Command fio is the file I/O helper that ntx runs as a coprocess.
package main

import (
	"os"

	"github.com/spf13/afero"
	"github.com/stesla/ntx/internal/fio"
)

func main() {
	os.Exit(fio.Main(afero.NewOsFs(), os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
