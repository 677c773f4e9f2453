// Command zfmrf manages MRI studies for the ZfMRF lab.
package main

import (
	"os"

	"github.com/fraser29/zfmrf/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
