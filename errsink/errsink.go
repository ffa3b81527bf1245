// Package errsink implements the engine's ErrorSink collaborator (§6, §7)
// on top of charmbracelet/log, the teacher repo's structured logger.
package errsink

import (
	"github.com/charmbracelet/log"
)

// Sink reports engine errors as structured, leveled log lines instead of
// propagating them — every error the engine hits is non-fatal by design.
type Sink struct {
	logger *log.Logger
}

// New wraps logger. If logger is nil, log.Default() is used.
func New(logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Default()
	}
	return &Sink{logger: logger}
}

// Report logs err at warn level with a "component=tokline" field so it's
// distinguishable from other subsystems sharing the same logger.
func (s *Sink) Report(err error) {
	s.logger.Warn("tokenization error", "component", "tokline", "err", err)
}

// ReportFatal is used for the one error kind that disables the tokenizer
// entirely (TokenizerInitialisationError) rather than merely skipping a
// line; logged at error level to distinguish it in operator dashboards.
func (s *Sink) ReportFatal(err error) {
	s.logger.Error("tokenizer disabled", "component", "tokline", "err", err)
}
