package main

import (
	"newsward/cmd/handlers"
	"newsward/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
