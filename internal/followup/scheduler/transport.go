// internal/followup/scheduler/transport.go
package scheduler

import (
	"context"
	"errors"
	"fmt"

	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/models"
)

// Transport delivers a message to a lead.
type Transport interface {
	Name() string
	Send(ctx context.Context, recipient string, msg models.OutboundMessage) error
}

// FallbackTransport tries each transport in order until one accepts the message.
type FallbackTransport struct {
	transports []Transport
	logger     logger.Logger
}

func NewFallbackTransport(log logger.Logger, transports ...Transport) *FallbackTransport {
	var live []Transport
	for _, t := range transports {
		if t != nil {
			live = append(live, t)
		}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &FallbackTransport{transports: live, logger: log}
}

func (f *FallbackTransport) Name() string { return "fallback" }

func (f *FallbackTransport) Send(ctx context.Context, recipient string, msg models.OutboundMessage) error {
	if len(f.transports) == 0 {
		return apperrors.NewTransportFailedError("none", errors.New("no transport configured"))
	}
	var errs []error
	for i, t := range f.transports {
		err := t.Send(ctx, recipient, msg)
		if err == nil {
			if i > 0 {
				f.logger.Info("message delivered on fallback transport", map[string]interface{}{"transport": t.Name()})
			}
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		f.logger.Warn("transport send failed", map[string]interface{}{"transport": t.Name(), "error": err})
		if ctx.Err() != nil {
			break
		}
	}
	return apperrors.NewTransportFailedError(f.transports[len(f.transports)-1].Name(), errors.Join(errs...))
}
