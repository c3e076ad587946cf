package live

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guildquest/internal/review"
)

const publishTimeout = 2 * time.Second

// Publisher sends committed changes to a Bus. Failures are logged, never returned:
// by the time an event is published the change it describes is already stored.
type Publisher struct {
	bus    Bus
	logger *zap.Logger
}

func NewPublisher(bus Bus, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{bus: bus, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, table, action, guildID, recordID string, record any) {
	if p == nil || p.bus == nil {
		return
	}
	e, err := NewEvent(table, action, guildID, recordID, record)
	if err != nil {
		p.logger.Error("encode live event", zap.String("table", table), zap.String("record_id", recordID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.bus.Publish(ctx, e); err != nil {
		p.logger.Warn("publish live event",
			zap.String("table", table),
			zap.String("action", action),
			zap.String("record_id", recordID),
			zap.Error(err))
	}
}

// SubmissionChanged lets the review gateway report its commits.
func (p *Publisher) SubmissionChanged(ctx context.Context, s review.Submission, action string) {
	p.Publish(ctx, TableSubmissions, action, s.GuildID, s.ID, s)
}
