package main

import "time"

// UpFlags Flag structs to decouple cobra from logic for testing.
type UpFlags struct {
	ConfigPath string
	LogLevel   string
}

type DownFlags struct {
	ConfigPath string
	Wait       time.Duration
}

type StatusFlags struct {
	ConfigPath string
	JSONOut    bool
}
