package main

import "github.com/8gudbits/WhisperChat/internal/app"

func main() {
	app.Run()
}
