package main

import "github.com/notargets/cweno/cmd"

func main() {
	cmd.Execute()
}
