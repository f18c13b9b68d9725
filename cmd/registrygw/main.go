package main

import "github.com/vietddude/registrygw/internal/cli"

func main() {
	cli.Execute()
}
