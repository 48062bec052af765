// Package logging configures structured logging for bt2c-node. The teacher
// itself only reaches for stdlib log.Printf in cmd/quantum-node/main.go;
// prysmaticlabs-prysm's structured, field-tagged logging (component- and
// validator-scoped fields on every entry) is the pack's idiom for a
// validator-lifecycle service, so this package adopts logrus per that
// example instead of the teacher's bare stdlib calls.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Logger configured for the given network type and
// verbosity, emitting structured (logfmt-style) fields rather than bare
// strings.
func New(networkType string, debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	l.SetReportCaller(false)
	l.WithField("network", networkType).Debug("logger initialized")
	return l
}

// WithValidator returns an entry pre-tagged with a validator address field,
// used by cmd/bt2c-node's slashing and validator-registration log lines.
func WithValidator(l *logrus.Logger, address string) *logrus.Entry {
	return l.WithField("validator", address)
}

// WithBlock returns an entry pre-tagged with height and hash fields.
func WithBlock(l *logrus.Logger, height uint64, hash string) *logrus.Entry {
	return l.WithFields(logrus.Fields{"height": height, "block_hash": hash})
}
