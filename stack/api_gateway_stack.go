package stack

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscertificatemanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53targets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// ApiGatewayStackProps defines the properties for the gateway stack.
type ApiGatewayStackProps struct {
	awscdk.StackProps
	Config EnvironmentConfig
}

// ApiGatewayStack provisions the public webhook entry point: a regional REST
// API behind a custom domain, its alarms and its registry entries. The webhook
// Lambda is referenced by name only; it belongs to an independent deployment
// lifecycle and must exist under the expected name at deploy time.
type ApiGatewayStack struct {
	awscdk.Stack
	Config EnvironmentConfig

	RestApi     awsapigateway.RestApi
	Domain      awsapigateway.IDomainName
	AlertsTopic awssns.ITopic
}

// GatewayResources holds the REST API handles shared by the create functions.
type GatewayResources struct {
	RestApi awsapigateway.RestApi
	Domain  awsapigateway.IDomainName
}

// NewApiGatewayStack creates the gateway stack. Callers must only invoke it
// when the environment's domain configuration is complete (GatewayEnabled).
func NewApiGatewayStack(scope constructs.Construct, id string, props *ApiGatewayStackProps) *ApiGatewayStack {
	stack := awscdk.NewStack(scope, &id, &props.StackProps)

	resources := &Resources{
		Stack:  stack,
		Config: props.Config,
	}

	api := createRestApi(resources)
	domain := createDomainBinding(resources, api)
	monitoring := createGatewayMonitoring(resources, api)
	createGatewayParameters(resources, api)

	return &ApiGatewayStack{
		Stack:       stack,
		Config:      props.Config,
		RestApi:     api,
		Domain:      domain,
		AlertsTopic: monitoring.AlertsTopic,
	}
}

// createRestApi creates the regional REST API with a single POST /webhook
// method proxying to the externally owned webhook Lambda.
func createRestApi(resources *Resources) awsapigateway.RestApi {
	cfg := resources.Config

	api := awsapigateway.NewRestApi(resources.Stack, jsii.String("WebhookApi"), &awsapigateway.RestApiProps{
		RestApiName: jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "webhook-api")),
		Description: jsii.String(fmt.Sprintf("Webhook entry point for the %s %s task pipeline", cfg.Project, cfg.EnvironmentName)),
		EndpointTypes: &[]awsapigateway.EndpointType{
			awsapigateway.EndpointType_REGIONAL,
		},
		// All traffic goes through the custom domain.
		DisableExecuteApiEndpoint: jsii.Bool(true),
		CloudWatchRole:            jsii.Bool(true),
		DeployOptions: &awsapigateway.StageOptions{
			StageName:            jsii.String(GatewayStageName),
			LoggingLevel:         awsapigateway.MethodLoggingLevel_INFO,
			MetricsEnabled:       jsii.Bool(true),
			ThrottlingRateLimit:  jsii.Number(cfg.ThrottlingRateLimit),
			ThrottlingBurstLimit: jsii.Number(cfg.ThrottlingBurstLimit),
		},
	})

	// The webhook function is deployed separately; this is a named reference,
	// never an owned resource.
	webhookFn := awslambda.Function_FromFunctionName(resources.Stack, jsii.String("WebhookFunction"),
		jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "webhook")))

	webhook := api.Root().AddResource(jsii.String(WebhookResourcePath), nil)
	webhook.AddMethod(jsii.String("POST"), awsapigateway.NewLambdaIntegration(webhookFn, &awsapigateway.LambdaIntegrationOptions{
		Proxy: jsii.Bool(true),
	}), nil)

	return api
}

// createDomainBinding provisions or imports the custom domain, maps the API
// onto it and optionally creates the DNS alias record. The binding variant was
// resolved once at configuration time; the import branch creates no domain
// resource and no record.
func createDomainBinding(resources *Resources, api awsapigateway.RestApi) awsapigateway.IDomainName {
	cfg := resources.Config
	binding := cfg.DomainBinding()

	var domain awsapigateway.IDomainName
	switch binding.Kind {
	case DomainBindingImport:
		domain = awsapigateway.DomainName_FromDomainNameAttributes(resources.Stack, jsii.String("ImportedDomain"), &awsapigateway.DomainNameAttributes{
			DomainName:                  jsii.String(cfg.DomainName),
			DomainNameAliasTarget:       jsii.String(binding.AliasTarget),
			DomainNameAliasHostedZoneId: jsii.String(binding.AliasZone),
		})

	case DomainBindingCreate:
		certificate := awscertificatemanager.Certificate_FromCertificateArn(resources.Stack, jsii.String("DomainCertificate"),
			jsii.String(binding.CertificateARN))
		created := awsapigateway.NewDomainName(resources.Stack, jsii.String("ApiDomain"), &awsapigateway.DomainNameProps{
			DomainName:     jsii.String(cfg.DomainName),
			Certificate:    certificate,
			EndpointType:   awsapigateway.EndpointType_REGIONAL,
			SecurityPolicy: awsapigateway.SecurityPolicy_TLS_1_2,
		})
		domain = created

		// The record toggle is independent of the create branch: it stays off
		// when the record is managed out-of-band.
		if cfg.CreateDNSRecord {
			zone := awsroute53.HostedZone_FromHostedZoneAttributes(resources.Stack, jsii.String("HostedZone"), &awsroute53.HostedZoneAttributes{
				HostedZoneId: jsii.String(cfg.HostedZoneID),
				ZoneName:     jsii.String(cfg.HostedZoneName),
			})
			awsroute53.NewARecord(resources.Stack, jsii.String("ApiAliasRecord"), &awsroute53.ARecordProps{
				Zone:       zone,
				RecordName: jsii.String(cfg.DomainName),
				Target:     awsroute53.RecordTarget_FromAlias(awsroute53targets.NewApiGatewayDomain(created)),
			})
		}
	}

	awsapigateway.NewBasePathMapping(resources.Stack, jsii.String("ApiMapping"), &awsapigateway.BasePathMappingProps{
		DomainName: domain,
		RestApi:    api,
		Stage:      api.DeploymentStage(),
	})

	return domain
}

// createGatewayMonitoring creates the gateway alerts topic and its two alarms.
func createGatewayMonitoring(resources *Resources, api awsapigateway.RestApi) *MonitoringResources {
	cfg := resources.Config

	topic := awssns.NewTopic(resources.Stack, jsii.String("GatewayAlertsTopic"), &awssns.TopicProps{
		TopicName: jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "gateway-alerts")),
	})

	serverErrors := api.MetricServerError(&awscloudwatch.MetricOptions{
		Period:    awscdk.Duration_Minutes(jsii.Number(ServerErrorPeriodMinutes)),
		Statistic: jsii.String("Sum"),
	}).CreateAlarm(resources.Stack, jsii.String("ServerErrorAlarm"), &awscloudwatch.CreateAlarmOptions{
		AlarmName:          jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "webhook-5xx")),
		AlarmDescription:   jsii.String("Webhook API is returning server errors"),
		Threshold:          jsii.Number(ServerErrorThreshold),
		EvaluationPeriods:  jsii.Number(ServerErrorEvaluationPeriods),
		ComparisonOperator: awscloudwatch.ComparisonOperator_GREATER_THAN_OR_EQUAL_TO_THRESHOLD,
		TreatMissingData:   awscloudwatch.TreatMissingData_NOT_BREACHING,
	})

	latency := api.MetricLatency(&awscloudwatch.MetricOptions{
		Period:    awscdk.Duration_Minutes(jsii.Number(LatencyPeriodMinutes)),
		Statistic: jsii.String("p95"),
	}).CreateAlarm(resources.Stack, jsii.String("LatencyAlarm"), &awscloudwatch.CreateAlarmOptions{
		AlarmName:          jsii.String(resourceName(cfg.Project, cfg.EnvironmentName, "webhook-latency")),
		AlarmDescription:   jsii.String("Webhook API p95 latency is degraded"),
		Threshold:          jsii.Number(LatencyP95ThresholdMillis),
		EvaluationPeriods:  jsii.Number(LatencyEvaluationPeriods),
		ComparisonOperator: awscloudwatch.ComparisonOperator_GREATER_THAN_OR_EQUAL_TO_THRESHOLD,
		TreatMissingData:   awscloudwatch.TreatMissingData_NOT_BREACHING,
	})

	alarms := []awscloudwatch.Alarm{serverErrors, latency}
	for _, alarm := range alarms {
		wireAlarm(alarm, topic)
	}

	return &MonitoringResources{
		AlertsTopic: topic,
		Alarms:      alarms,
	}
}

// createGatewayParameters publishes the five gateway registry entries. The
// source ARN authorizes the webhook Lambda's resource policy for exactly the
// POST method this stack exposes.
func createGatewayParameters(resources *Resources, api awsapigateway.RestApi) {
	cfg := resources.Config

	sourceArn := api.ArnForExecuteApi(jsii.String("POST"), jsii.String("/"+WebhookResourcePath), jsii.String(GatewayStageName))

	entries := []parameterEntry{
		{"api-gateway/rest-api-id", api.RestApiId(), "Webhook REST API identifier"},
		{"api-gateway/rest-api-url", jsii.String(fmt.Sprintf("https://%s/%s", cfg.DomainName, WebhookResourcePath)), "Webhook invocation URL"},
		{"api-gateway/domain-name", jsii.String(cfg.DomainName), "Webhook custom domain name"},
		{"api-gateway/stage-name", jsii.String(GatewayStageName), "Webhook API stage name"},
		{"api-gateway/source-arn", sourceArn, "Execute-API source ARN for webhook invocation permissions"},
	}
	createParameters(resources, entries)
}
