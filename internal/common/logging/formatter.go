package logging

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter prints only the message, for commands whose log output is their user interface.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s\n", entry.Message)), nil
}

// ConfigureCliLogging replaces the standard logger with one suitable for interactive commands.
func ConfigureCliLogging() {
	l := log.New()
	l.SetFormatter(new(CommandLineFormatter))
	l.SetOutput(os.Stdout)
	l.SetLevel(log.InfoLevel)
	ReplaceStdLogger(FromLogrus(l))
}
