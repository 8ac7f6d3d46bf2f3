package main

import "github.com/vietddude/stability/internal/cli"

func main() {
	cli.Execute()
}
