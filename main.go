package main

import (
	"github.com/joho/godotenv"

	"schemainjector/cmd"
)

func main() {
	_ = godotenv.Load()
	cmd.Execute()
}
