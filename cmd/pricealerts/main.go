package main

import "commodity-price-alerts/internal/cli"

func main() {
	cli.Execute()
}
