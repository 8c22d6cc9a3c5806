package main

import "github.com/ZanzyTHEbar/sports-data-agent/cmd"

func main() {
	cmd.Execute()
}
