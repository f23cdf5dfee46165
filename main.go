package main

import "gitlab.com/nunet/nosana-node-monitor/cmd"

func main() {
	cmd.Execute()
}
