package kv

// The schema defines the bucket layout. Secondary index buckets map a
// composite key back to the primary record id so range scans over one
// validator's reports or one user's webhooks stay cheap.
var (
	validatorsBucket     = []byte("validators")
	agentsBucket         = []byte("agents")
	agentReportsBucket   = []byte("agent-reports")
	alertsBucket         = []byte("alerts")
	webhookConfigsBucket = []byte("webhook-configs")

	// Indices buckets.
	reportsByValidatorBucket = []byte("reports-by-validator")
	alertsByValidatorBucket  = []byte("alerts-by-validator")
	webhooksByUserBucket     = []byte("webhooks-by-user")
)
