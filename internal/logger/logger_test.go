package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textTraceString = `^time="[0-9/:. ]{26}" severity=TRACE message="traceExample"`
	textInfoString  = `^time="[0-9/:. ]{26}" severity=INFO message="infoExample"`
	jsonErrorString = `^{"timestamp":{"seconds":\d+,"nanos":\d+},"severity":"ERROR","message":"errorExample"}`
)

type LoggerTestSuite struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func (s *LoggerTestSuite) redirect(format Format, severity string) *bytes.Buffer {
	var buf bytes.Buffer
	var handler slog.Handler
	if format == FormatJSON {
		handler = defaultLoggerFactory.createJSONHandler(&buf, programLevel, "")
	} else {
		handler = defaultLoggerFactory.createJsonOrTextHandler(&buf, programLevel, "")
	}
	defaultLogger = slog.New(handler)
	setLoggingLevel(severity, programLevel)
	return &buf
}

func (s *LoggerTestSuite) TestTraceVisibleAtTraceSeverity() {
	buf := s.redirect(FormatText, "TRACE")
	Tracef("traceExample")
	s.Regexp(regexp.MustCompile(textTraceString), buf.String())
}

func (s *LoggerTestSuite) TestTraceSuppressedAtInfoSeverity() {
	buf := s.redirect(FormatText, "INFO")
	Tracef("traceExample")
	s.Empty(buf.String())
}

func (s *LoggerTestSuite) TestInfoVisibleAtInfoSeverity() {
	buf := s.redirect(FormatText, "INFO")
	Infof("infoExample")
	s.Regexp(regexp.MustCompile(textInfoString), buf.String())
}

func (s *LoggerTestSuite) TestJSONFormat() {
	buf := s.redirect(FormatJSON, "ERROR")
	Errorf("errorExample")
	assert.Regexp(s.T(), regexp.MustCompile(jsonErrorString), buf.String())
}
