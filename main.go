package main

import "github.com/KaramelBytes/macindex/cmd"

func main() {
	cmd.Execute()
}
