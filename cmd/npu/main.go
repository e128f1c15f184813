// Command npu runs burst-driven spiking neural networks.
package main

import (
	"os"

	"github.com/roach88/npu/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
