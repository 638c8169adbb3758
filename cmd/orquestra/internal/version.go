package internal

// Version is overridden at build time via -ldflags.
var Version = "dev"

func GetVersion() string { return Version }
