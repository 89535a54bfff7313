package server

// ANSI escapes used by the route log.
const (
	ansiGreen = "\033[32m"
	ansiBlue  = "\033[34m"
	ansiGray  = "\033[90m"
	ansiReset = "\033[0m"
)

var methodColors = map[string]string{
	"GET":  ansiGreen,
	"POST": ansiBlue,
}
