package main

// Version is injected at build time with: -ldflags "-X 'main.version=1.2.3'"
var version = "dev"

func main() {
	Execute()
}
