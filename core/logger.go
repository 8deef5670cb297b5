package core

// Logger is the app-wide logging port.
// args may hold errors, map[string]interface{} extras, or the subject of the log (eg. a wizard session).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
