package stack

import "fmt"

// DefaultProject is the project prefix used for every named resource when the
// environment configuration does not override it.
const DefaultProject = "automation"

// DefaultEnvironmentName is the fallback environment when neither an explicit
// name nor a registry default is supplied.
const DefaultEnvironmentName = "dev"

// ParameterPrefix is the root of the cross-service parameter registry.
const ParameterPrefix = "/automation"

// Tag keys applied to every top-level stack for cost/usage attribution.
const (
	ProjectTagKey     = "Project"
	EnvironmentTagKey = "Environment"
)

// Queue topology defaults. Visibility timeouts are overridable per environment;
// retention, long-poll wait and the redrive threshold are fixed contracts.
const (
	DefaultOrderVisibilityTimeoutSeconds  = 300
	DefaultResultVisibilityTimeoutSeconds = 180
	DefaultMaxReceiveCount                = 3
	ReceiveWaitTimeSeconds                = 6
	OrderQueueRetentionDays               = 14
	ResultQueueRetentionDays              = 7
	DeadLetterRetentionDays               = 7
)

// Messaging alarm thresholds.
const (
	OrderAgeThresholdSeconds  = 900
	OrderAgePeriodMinutes     = 5
	ResultAgeThresholdSeconds = 600
	ResultAgePeriodMinutes    = 3
	AgeAlarmEvaluationPeriods = 2
	DLQDepthThreshold         = 1
	DLQAlarmEvaluationPeriods = 1
)

// Gateway defaults and alarm thresholds.
const (
	DefaultThrottlingRateLimit   = 10
	DefaultThrottlingBurstLimit  = 25
	ServerErrorThreshold         = 5
	ServerErrorPeriodMinutes     = 5
	ServerErrorEvaluationPeriods = 2
	LatencyP95ThresholdMillis    = 5000
	LatencyPeriodMinutes         = 5
	LatencyEvaluationPeriods     = 3
	GatewayStageName             = "prod"
	WebhookResourcePath          = "webhook"
)

// resourceName builds the canonical {project}-{environment}-{purpose} name used
// by every named resource in both stacks.
func resourceName(project, environment, purpose string) string {
	return fmt.Sprintf("%s-%s-%s", project, environment, purpose)
}

// parameterPath builds the registry path for a semantic category, e.g.
// parameterPath("dev", "queues/order/url") -> "/automation/dev/queues/order/url".
func parameterPath(environment, category string) string {
	return fmt.Sprintf("%s/%s/%s", ParameterPrefix, environment, category)
}
