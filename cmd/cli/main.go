package main

import "github.com/macprof-analysis/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
