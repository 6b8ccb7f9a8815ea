package main

import "github.com/tanq16/offpack/cmd"

func main() {
	cmd.Execute()
}
