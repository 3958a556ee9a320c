package main

import "github.com/widgetgate/widgetgate/cmd/widgetgate/cmd"

func main() {
	cmd.Execute()
}
