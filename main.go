package main

import "github.com/theirongolddev/cpusage/cmd"

func main() {
	cmd.Execute()
}
