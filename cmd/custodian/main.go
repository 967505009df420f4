// Command custodian runs the Custodian job-supervision CLI.
package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/custodian/internal/cli"

	_ "github.com/ChuLiYu/custodian/internal/examplejob"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
