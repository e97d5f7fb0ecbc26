package main

import (
	"github.com/Laisky/weather-mcp-gateway/cmd"
)

func main() {
	cmd.Execute()
}
