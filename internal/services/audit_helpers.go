package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/gridbasehq/gridbase/pkg/logger"
)

// recordAudit writes an audit event, tolerating a nil service and logging
// failures instead of propagating them. Audit problems never fail the
// operation being audited.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.Warn("audit log write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
