package events

import (
	"go.uber.org/zap"
)

// LogProducer writes events to the log. It is used when no brokers are
// configured.
type LogProducer struct {
	logger *zap.Logger
}

func NewLogProducer(logger *zap.Logger) *LogProducer {
	return &LogProducer{logger: logger.Named("events")}
}

func (p *LogProducer) Produce(event Event) {
	p.logger.Info("Domain event",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.Uint64("company_id", event.CompanyID),
		zap.Uint64("employee_id", event.EmployeeID),
		zap.String("reason", event.Reason),
	)
}

func (p *LogProducer) Close() {}
