package main

// Version is overridden at link time on release builds.
var Version = "dev"
