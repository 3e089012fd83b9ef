package stack

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatchactions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awskms"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsssm"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// DualQueueMessageStackProps defines the properties for the messaging stack.
type DualQueueMessageStackProps struct {
	awscdk.StackProps
	Config EnvironmentConfig
}

// DualQueueMessageStack provisions the messaging backbone for the task
// pipeline: the order/result queue pair with their dead-letter queues, the
// shared encryption key, the three service roles, queue alarms and the
// parameter registry.
type DualQueueMessageStack struct {
	awscdk.Stack
	Config EnvironmentConfig

	EncryptionKey awskms.IKey
	OrderQueue    awssqs.IQueue
	OrderDLQ      awssqs.IQueue
	ResultQueue   awssqs.IQueue
	ResultDLQ     awssqs.IQueue
	WebhookRole   awsiam.IRole
	WorkerRole    awsiam.IRole
	FeedbackRole  awsiam.IRole
	AlertsTopic   awssns.ITopic
}

// Resources holds the stack scope and resolved configuration shared by the
// create functions.
type Resources struct {
	Stack  awscdk.Stack
	Config EnvironmentConfig
}

// QueueResources holds the queue topology handles.
type QueueResources struct {
	OrderQueue  awssqs.IQueue
	OrderDLQ    awssqs.IQueue
	ResultQueue awssqs.IQueue
	ResultDLQ   awssqs.IQueue
}

// RoleResources holds the three least-privilege service identities.
type RoleResources struct {
	WebhookRole  awsiam.IRole
	WorkerRole   awsiam.IRole
	FeedbackRole awsiam.IRole
}

// MonitoringResources holds the notification channel and its alarms.
type MonitoringResources struct {
	AlertsTopic awssns.ITopic
	Alarms      []awscloudwatch.Alarm
}

// NewDualQueueMessageStack creates the messaging stack for one environment.
func NewDualQueueMessageStack(scope constructs.Construct, id string, props *DualQueueMessageStackProps) *DualQueueMessageStack {
	stack := awscdk.NewStack(scope, &id, &props.StackProps)

	resources := &Resources{
		Stack:  stack,
		Config: props.Config,
	}

	// Create resources in dependency order: the key is referenced by every
	// queue and the topic, dead-letter queues must exist before the primary
	// queues that redrive into them, and roles and alarms reference queues.
	key := createEncryptionKey(resources)
	queues := createQueueTopology(resources, key)
	roles := createServiceRoles(resources, queues, key)
	monitoring := createQueueMonitoring(resources, queues, key)
	createMessagingParameters(resources, queues, roles, monitoring)

	return &DualQueueMessageStack{
		Stack:         stack,
		Config:        props.Config,
		EncryptionKey: key,
		OrderQueue:    queues.OrderQueue,
		OrderDLQ:      queues.OrderDLQ,
		ResultQueue:   queues.ResultQueue,
		ResultDLQ:     queues.ResultDLQ,
		WebhookRole:   roles.WebhookRole,
		WorkerRole:    roles.WorkerRole,
		FeedbackRole:  roles.FeedbackRole,
		AlertsTopic:   monitoring.AlertsTopic,
	}
}

// createEncryptionKey creates the shared KMS key. Rotation is always enabled;
// there is deliberately no configuration path to disable it.
func createEncryptionKey(resources *Resources) awskms.IKey {
	cfg := resources.Config
	key := awskms.NewKey(resources.Stack, jsii.String("MessagingKey"), &awskms.KeyProps{
		Alias:             jsii.String(fmt.Sprintf("alias/%s", resourceName(cfg.Project, cfg.EnvironmentName, "messaging"))),
		Description:       jsii.String(fmt.Sprintf("Shared encryption key for %s %s messaging resources", cfg.Project, cfg.EnvironmentName)),
		EnableKeyRotation: jsii.Bool(true),
	})
	return key
}

// createQueueTopology creates the dead-letter queues first, then the primary
// queues that redrive into them. The ordering is a hard creation dependency:
// a redrive policy needs the concrete DLQ to reference.
func createQueueTopology(resources *Resources, key awskms.IKey) *QueueResources {
	cfg := resources.Config

	orderDLQ := awssqs.NewQueue(resources.Stack, jsii.String("OrderDLQ"), &awssqs.QueueProps{
		QueueName:           jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "order-dlq")),
		RetentionPeriod:     awscdk.Duration_Days(jsii.Number(DeadLetterRetentionDays)),
		EncryptionMasterKey: key,
	})

	resultDLQ := awssqs.NewQueue(resources.Stack, jsii.String("ResultDLQ"), &awssqs.QueueProps{
		QueueName:           jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "result-dlq")),
		RetentionPeriod:     awscdk.Duration_Days(jsii.Number(DeadLetterRetentionDays)),
		EncryptionMasterKey: key,
	})

	orderTuning := cfg.orderQueueSettings()
	orderQueue := awssqs.NewQueue(resources.Stack, jsii.String("OrderQueue"), &awssqs.QueueProps{
		QueueName:         jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "order")),
		VisibilityTimeout: awscdk.Duration_Seconds(jsii.Number(orderTuning.VisibilityTimeoutSeconds)),
		// 14 days keeps the full investigation window for stuck orders.
		RetentionPeriod:        awscdk.Duration_Days(jsii.Number(OrderQueueRetentionDays)),
		ReceiveMessageWaitTime: awscdk.Duration_Seconds(jsii.Number(ReceiveWaitTimeSeconds)),
		EncryptionMasterKey:    key,
		DeadLetterQueue: &awssqs.DeadLetterQueue{
			Queue:           orderDLQ,
			MaxReceiveCount: jsii.Number(orderTuning.MaxReceiveCount),
		},
	})

	resultTuning := cfg.resultQueueSettings()
	resultQueue := awssqs.NewQueue(resources.Stack, jsii.String("ResultQueue"), &awssqs.QueueProps{
		QueueName:              jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "result")),
		VisibilityTimeout:      awscdk.Duration_Seconds(jsii.Number(resultTuning.VisibilityTimeoutSeconds)),
		RetentionPeriod:        awscdk.Duration_Days(jsii.Number(ResultQueueRetentionDays)),
		ReceiveMessageWaitTime: awscdk.Duration_Seconds(jsii.Number(ReceiveWaitTimeSeconds)),
		EncryptionMasterKey:    key,
		DeadLetterQueue: &awssqs.DeadLetterQueue{
			Queue:           resultDLQ,
			MaxReceiveCount: jsii.Number(resultTuning.MaxReceiveCount),
		},
	})

	return &QueueResources{
		OrderQueue:  orderQueue,
		OrderDLQ:    orderDLQ,
		ResultQueue: resultQueue,
		ResultDLQ:   resultDLQ,
	}
}

// Queue actions granted to the service roles. Consume covers everything a
// poller needs; send covers a producer.
var (
	queueConsumeActions = []string{
		"sqs:ReceiveMessage",
		"sqs:DeleteMessage",
		"sqs:ChangeMessageVisibility",
		"sqs:GetQueueAttributes",
	}
	queueSendActions = []string{
		"sqs:SendMessage",
		"sqs:GetQueueAttributes",
	}
	keyUsageActions = []string{
		"kms:Decrypt",
		"kms:GenerateDataKey",
	}
)

// createServiceRoles creates the three least-privilege identities. Every
// statement references concrete queue or key ARNs; wildcards are forbidden.
func createServiceRoles(resources *Resources, queues *QueueResources, key awskms.IKey) *RoleResources {
	keyStatement := awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect:    awsiam.Effect_ALLOW,
		Actions:   jsiiStrings(keyUsageActions),
		Resources: &[]*string{key.KeyArn()},
	})

	webhookRole := createServiceRole(resources, "WebhookRole", "webhook", []awsiam.PolicyStatement{
		awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Effect:    awsiam.Effect_ALLOW,
			Actions:   jsiiStrings(queueSendActions),
			Resources: &[]*string{queues.OrderQueue.QueueArn()},
		}),
		keyStatement,
	})

	workerRole := createServiceRole(resources, "WorkerRole", "worker", []awsiam.PolicyStatement{
		awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Effect:    awsiam.Effect_ALLOW,
			Actions:   jsiiStrings(queueConsumeActions),
			Resources: &[]*string{queues.OrderQueue.QueueArn()},
		}),
		awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Effect:    awsiam.Effect_ALLOW,
			Actions:   jsiiStrings(queueSendActions),
			Resources: &[]*string{queues.ResultQueue.QueueArn()},
		}),
		keyStatement,
	})

	// The feedback role may requeue work, so it gets send on the order queue
	// in addition to consuming results.
	feedbackRole := createServiceRole(resources, "FeedbackRole", "feedback", []awsiam.PolicyStatement{
		awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Effect:    awsiam.Effect_ALLOW,
			Actions:   jsiiStrings(queueConsumeActions),
			Resources: &[]*string{queues.ResultQueue.QueueArn()},
		}),
		awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Effect:    awsiam.Effect_ALLOW,
			Actions:   jsiiStrings(queueSendActions),
			Resources: &[]*string{queues.OrderQueue.QueueArn()},
		}),
		keyStatement,
	})

	return &RoleResources{
		WebhookRole:  webhookRole,
		WorkerRole:   workerRole,
		FeedbackRole: feedbackRole,
	}
}

// createServiceRole creates one Lambda-trusted role with the baseline
// execution policy and a single inline least-privilege policy.
func createServiceRole(resources *Resources, constructID, identity string, statements []awsiam.PolicyStatement) awsiam.IRole {
	cfg := resources.Config
	role := awsiam.NewRole(resources.Stack, jsii.String(constructID), &awsiam.RoleProps{
		RoleName:  jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, identity+"-role")),
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("lambda.amazonaws.com"), nil),
		ManagedPolicies: &[]awsiam.IManagedPolicy{
			awsiam.ManagedPolicy_FromAwsManagedPolicyName(jsii.String("service-role/AWSLambdaBasicExecutionRole")),
		},
		InlinePolicies: &map[string]awsiam.PolicyDocument{
			"MessagingAccess": awsiam.NewPolicyDocument(&awsiam.PolicyDocumentProps{
				Statements: &statements,
			}),
		},
	})
	return role
}

// createQueueMonitoring creates the alerts topic and the four queue alarms.
// Every alarm notifies the topic on both alarm entry and recovery.
func createQueueMonitoring(resources *Resources, queues *QueueResources, key awskms.IKey) *MonitoringResources {
	cfg := resources.Config

	topic := awssns.NewTopic(resources.Stack, jsii.String("QueueAlertsTopic"), &awssns.TopicProps{
		TopicName: jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "queue-alerts")),
		MasterKey: key,
	})

	orderAge := queues.OrderQueue.MetricApproximateAgeOfOldestMessage(&awscloudwatch.MetricOptions{
		Period:    awscdk.Duration_Minutes(jsii.Number(OrderAgePeriodMinutes)),
		Statistic: jsii.String("Maximum"),
	}).CreateAlarm(resources.Stack, jsii.String("OrderQueueAgeAlarm"), &awscloudwatch.CreateAlarmOptions{
		AlarmName:         jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "order-age")),
		AlarmDescription:  jsii.String("Oldest order message is not being picked up in time"),
		Threshold:         jsii.Number(OrderAgeThresholdSeconds),
		EvaluationPeriods: jsii.Number(AgeAlarmEvaluationPeriods),
		TreatMissingData:  awscloudwatch.TreatMissingData_BREACHING,
	})

	resultAge := queues.ResultQueue.MetricApproximateAgeOfOldestMessage(&awscloudwatch.MetricOptions{
		Period:    awscdk.Duration_Minutes(jsii.Number(ResultAgePeriodMinutes)),
		Statistic: jsii.String("Maximum"),
	}).CreateAlarm(resources.Stack, jsii.String("ResultQueueAgeAlarm"), &awscloudwatch.CreateAlarmOptions{
		AlarmName:         jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "result-age")),
		AlarmDescription:  jsii.String("Oldest result message is not being picked up in time"),
		Threshold:         jsii.Number(ResultAgeThresholdSeconds),
		EvaluationPeriods: jsii.Number(AgeAlarmEvaluationPeriods),
		TreatMissingData:  awscloudwatch.TreatMissingData_BREACHING,
	})

	orderDLQDepth := queues.OrderDLQ.MetricApproximateNumberOfMessagesVisible(&awscloudwatch.MetricOptions{
		Statistic: jsii.String("Maximum"),
	}).CreateAlarm(resources.Stack, jsii.String("OrderDLQDepthAlarm"), &awscloudwatch.CreateAlarmOptions{
		AlarmName:          jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "order-dlq-depth")),
		AlarmDescription:   jsii.String("Order messages are landing in the dead-letter queue"),
		Threshold:          jsii.Number(DLQDepthThreshold),
		EvaluationPeriods:  jsii.Number(DLQAlarmEvaluationPeriods),
		ComparisonOperator: awscloudwatch.ComparisonOperator_GREATER_THAN_OR_EQUAL_TO_THRESHOLD,
		TreatMissingData:   awscloudwatch.TreatMissingData_NOT_BREACHING,
	})

	resultDLQDepth := queues.ResultDLQ.MetricApproximateNumberOfMessagesVisible(&awscloudwatch.MetricOptions{
		Statistic: jsii.String("Maximum"),
	}).CreateAlarm(resources.Stack, jsii.String("ResultDLQDepthAlarm"), &awscloudwatch.CreateAlarmOptions{
		AlarmName:          jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "result-dlq-depth")),
		AlarmDescription:   jsii.String("Result messages are landing in the dead-letter queue"),
		Threshold:          jsii.Number(DLQDepthThreshold),
		EvaluationPeriods:  jsii.Number(DLQAlarmEvaluationPeriods),
		ComparisonOperator: awscloudwatch.ComparisonOperator_GREATER_THAN_OR_EQUAL_TO_THRESHOLD,
		TreatMissingData:   awscloudwatch.TreatMissingData_BREACHING,
	})

	alarms := []awscloudwatch.Alarm{orderAge, resultAge, orderDLQDepth, resultDLQDepth}
	for _, alarm := range alarms {
		wireAlarm(alarm, topic)
	}

	return &MonitoringResources{
		AlertsTopic: topic,
		Alarms:      alarms,
	}
}

// wireAlarm binds an alarm to a topic for both state entry and recovery.
func wireAlarm(alarm awscloudwatch.Alarm, topic awssns.ITopic) {
	action := awscloudwatchactions.NewSnsAction(topic)
	alarm.AddAlarmAction(action)
	alarm.AddOkAction(action)
}

// queueConfigSnapshot is the serialized form published at queues/config.
type queueConfigSnapshot struct {
	OrderQueue  queueSnapshotEntry `json:"orderQueue"`
	ResultQueue queueSnapshotEntry `json:"resultQueue"`
}

type queueSnapshotEntry struct {
	VisibilityTimeout int `json:"visibilityTimeout"`
	MaxReceiveCount   int `json:"maxReceiveCount"`
}

// createMessagingParameters publishes the nine registry entries for the
// messaging stack.
func createMessagingParameters(resources *Resources, queues *QueueResources, roles *RoleResources, monitoring *MonitoringResources) {
	cfg := resources.Config

	snapshot, err := json.Marshal(queueConfigSnapshot{
		OrderQueue: queueSnapshotEntry{
			VisibilityTimeout: cfg.orderQueueSettings().VisibilityTimeoutSeconds,
			MaxReceiveCount:   cfg.orderQueueSettings().MaxReceiveCount,
		},
		ResultQueue: queueSnapshotEntry{
			VisibilityTimeout: cfg.resultQueueSettings().VisibilityTimeoutSeconds,
			MaxReceiveCount:   cfg.resultQueueSettings().MaxReceiveCount,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("unable to serialize queue config snapshot: %v", err))
	}

	entries := []parameterEntry{
		{"queues/order/url", queues.OrderQueue.QueueUrl(), "Order queue URL"},
		{"queues/order/arn", queues.OrderQueue.QueueArn(), "Order queue ARN"},
		{"queues/result/url", queues.ResultQueue.QueueUrl(), "Result queue URL"},
		{"queues/result/arn", queues.ResultQueue.QueueArn(), "Result queue ARN"},
		{"queues/config", jsii.String(string(snapshot)), "Resolved queue configuration snapshot"},
		{"roles/webhook/arn", roles.WebhookRole.RoleArn(), "Webhook producer role ARN"},
		{"roles/worker/arn", roles.WorkerRole.RoleArn(), "Worker role ARN"},
		{"roles/feedback/arn", roles.FeedbackRole.RoleArn(), "Feedback role ARN"},
		{"monitoring/queue-alerts/topic-arn", monitoring.AlertsTopic.TopicArn(), "Queue alerts topic ARN"},
	}
	createParameters(resources, entries)
}

// parameterEntry is one published registry entry. The path is a pure function
// of (environment, category), so republishing unchanged input is idempotent.
type parameterEntry struct {
	Category    string
	Value       *string
	Description string
}

// createParameters writes a set of registry entries as SSM string parameters.
func createParameters(resources *Resources, entries []parameterEntry) {
	cfg := resources.Config
	for _, entry := range entries {
		path := parameterPath(cfg.EnvironmentName, entry.Category)
		awsssm.NewStringParameter(resources.Stack, jsii.String(parameterConstructID(entry.Category)), &awsssm.StringParameterProps{
			ParameterName: jsii.String(path),
			StringValue:   entry.Value,
			Description:   jsii.String(entry.Description),
			Tier:          awsssm.ParameterTier_STANDARD,
		})
	}
}

// parameterConstructID derives a stable construct ID from a category path.
func parameterConstructID(category string) string {
	id := strings.ReplaceAll(strings.ReplaceAll(category, "/", ""), "-", "")
	return fmt.Sprintf("Param%s", id)
}

// orderQueueSettings resolves the order queue tuning against the defaults.
func (c EnvironmentConfig) orderQueueSettings() QueueTuning {
	return resolveTuning(c.OrderQueue, DefaultOrderVisibilityTimeoutSeconds)
}

// resultQueueSettings resolves the result queue tuning against the defaults.
func (c EnvironmentConfig) resultQueueSettings() QueueTuning {
	return resolveTuning(c.ResultQueue, DefaultResultVisibilityTimeoutSeconds)
}

func resolveTuning(t QueueTuning, defaultVisibility int) QueueTuning {
	resolved := t
	if resolved.VisibilityTimeoutSeconds == 0 {
		resolved.VisibilityTimeoutSeconds = defaultVisibility
	}
	if resolved.MaxReceiveCount == 0 {
		resolved.MaxReceiveCount = DefaultMaxReceiveCount
	}
	return resolved
}

// jsiiStrings converts a string slice into the pointer-slice form jsii wants.
func jsiiStrings(values []string) *[]*string {
	out := make([]*string, len(values))
	for i, v := range values {
		out[i] = jsii.String(v)
	}
	return &out
}
