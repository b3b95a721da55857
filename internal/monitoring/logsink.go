package monitoring

import (
	"github.com/sirupsen/logrus"
)

// LogSink writes events to a logrus logger.
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) HandleEvent(e Event) {
	fields := logrus.Fields{"event": e.Kind}
	if e.DeviceName != "" {
		fields["device"] = e.DeviceName
		fields["address"] = e.Address
		fields["status"] = e.Status
	}
	entry := s.logger.WithFields(fields).WithTime(e.Timestamp)

	switch e.Kind {
	case EventTransition:
		entry.Warn(e.Message)
	case EventDiagnostic:
		entry.Error(e.Message)
	default:
		entry.Info(e.Message)
	}
}
