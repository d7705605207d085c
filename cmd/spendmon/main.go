package main

import (
	"github.com/vscarpenter/spend-monitor/internal/cli"
)

func main() {
	cli.Execute()
}
