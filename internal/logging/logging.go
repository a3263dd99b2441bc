// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
)

// Setup sets the standard logger's level and format. format "json" writes
// one JSON object per line; anything else uses the nested text formatter
// with ANSI colours. A nil w writes to stdout.
func Setup(level, format string, w io.Writer) error {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stdout
	}

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
		log.SetOutput(w)
	} else {
		log.SetFormatter(&nested.Formatter{
			HideKeys:        true,
			ShowFullLevel:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldsOrder:     []string{"component", "session", "map"},
		})
		log.SetOutput(ansicolor.NewAnsiColorWriter(w))
	}
	log.SetLevel(lvl)
	return nil
}
