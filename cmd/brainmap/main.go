package main

import (
	"os"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).execute(); err != nil {
		os.Exit(1)
	}
}
