package main

// version is set during build with -ldflags.
var version = "dev"

func main() {
	SetVersion(version)
	Execute()
}
