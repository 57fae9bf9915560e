package rate

import (
	"strings"

	"ccgateway/internal/metrics"
	"ccgateway/logger"
)

// ReportRateLimitExceeded records a request refused with 429 on surface.
func ReportRateLimitExceeded(log *logger.Log, surface, operation string) {
	fields := logger.Fields{"surface": surface, "operation": operation}
	metrics.EmitMetric(log, "rest_transport", "rate_limit_exceeded", int64(1), "counter", fields)
	if log == nil {
		log = logger.GetLogger()
	}
	log.WithComponent("rest_transport").WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan records a request refused with 418 on surface.
func ReportIPBan(log *logger.Log, surface, operation string) {
	fields := logger.Fields{"surface": surface, "operation": operation}
	metrics.EmitMetric(log, "rest_transport", "ip_ban", int64(1), "counter", fields)
	if log == nil {
		log = logger.GetLogger()
	}
	log.WithComponent("rest_transport").WithFields(fields).Error("ip banned")
}

// detectLimit inspects a venue error message for rate limit and ban wording.
func detectLimit(msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	rateLimit = !ipBan && (strings.Contains(lowerMsg, "too many requests") ||
		strings.Contains(lowerMsg, "rate limit") ||
		strings.Contains(lowerMsg, "too much request weight"))
	return
}

// ReportLimitFromMessage records a limit event when msg describes one. It
// reports whether anything was recorded.
func ReportLimitFromMessage(log *logger.Log, surface, operation, msg string) bool {
	rateLimit, ipBan := detectLimit(msg)
	if rateLimit {
		ReportRateLimitExceeded(log, surface, operation)
	}
	if ipBan {
		ReportIPBan(log, surface, operation)
	}
	return rateLimit || ipBan
}
