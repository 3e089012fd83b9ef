package stack

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prodConfig() EnvironmentConfig {
	cfg := devConfig()
	cfg.EnvironmentName = "prod"
	cfg.CertificateARN = "arn:aws:acm:us-east-1:111111111111:certificate/00000000-0000-0000-0000-000000000000"
	cfg.HostedZoneID = "Z0000000000000000000A"
	cfg.HostedZoneName = "example.com"
	cfg.DomainName = "hooks.example.com"
	cfg.CreateDNSRecord = true
	return cfg
}

func synthGateway(t *testing.T, cfg EnvironmentConfig) assertions.Template {
	t.Helper()
	app := awscdk.NewApp(nil)
	stacks := BuildStacks(app, cfg)
	require.NotNil(t, stacks.Gateway, "gateway stack should be active for this configuration")
	return assertions.Template_FromStack(stacks.Gateway.Stack, nil)
}

func TestApiGatewayStack_RestApi(t *testing.T) {
	template := synthGateway(t, prodConfig())

	template.ResourceCountIs(jsii.String("AWS::ApiGateway::RestApi"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::RestApi"), map[string]interface{}{
		"Name": "proj-prod-webhook-api",
		"EndpointConfiguration": assertions.Match_ObjectLike(&map[string]interface{}{
			"Types": []interface{}{"REGIONAL"},
		}),
		"DisableExecuteApiEndpoint": true,
	})
}

func TestApiGatewayStack_SinglePostMethod(t *testing.T) {
	template := synthGateway(t, prodConfig())

	template.ResourceCountIs(jsii.String("AWS::ApiGateway::Method"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Method"), map[string]interface{}{
		"HttpMethod": "POST",
		"Integration": assertions.Match_ObjectLike(&map[string]interface{}{
			"Type": "AWS_PROXY",
		}),
	})
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Resource"), map[string]interface{}{
		"PathPart": "webhook",
	})
}

func TestApiGatewayStack_StageThrottlingAndLogging(t *testing.T) {
	template := synthGateway(t, prodConfig())

	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Stage"), map[string]interface{}{
		"StageName": GatewayStageName,
		"MethodSettings": assertions.Match_ArrayWith(&[]interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"ThrottlingRateLimit":  10,
				"ThrottlingBurstLimit": 25,
				"LoggingLevel":         "INFO",
				"MetricsEnabled":       true,
			}),
		}),
	})
}

func TestApiGatewayStack_ThrottleOverrides(t *testing.T) {
	cfg := prodConfig()
	cfg.ThrottlingRateLimit = 50
	cfg.ThrottlingBurstLimit = 100
	template := synthGateway(t, cfg)

	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Stage"), map[string]interface{}{
		"MethodSettings": assertions.Match_ArrayWith(&[]interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"ThrottlingRateLimit":  50,
				"ThrottlingBurstLimit": 100,
			}),
		}),
	})
}

func TestApiGatewayStack_CreateBranch(t *testing.T) {
	template := synthGateway(t, prodConfig())

	template.ResourceCountIs(jsii.String("AWS::ApiGateway::DomainName"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::DomainName"), map[string]interface{}{
		"DomainName":     "hooks.example.com",
		"SecurityPolicy": "TLS_1_2",
		"EndpointConfiguration": assertions.Match_ObjectLike(&map[string]interface{}{
			"Types": []interface{}{"REGIONAL"},
		}),
	})
	template.ResourceCountIs(jsii.String("AWS::Route53::RecordSet"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::Route53::RecordSet"), map[string]interface{}{
		"Name": "hooks.example.com.",
		"Type": "A",
	})
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::BasePathMapping"), jsii.Number(1))
}

func TestApiGatewayStack_CreateBranchWithoutRecord(t *testing.T) {
	cfg := prodConfig()
	cfg.CreateDNSRecord = false
	template := synthGateway(t, cfg)

	template.ResourceCountIs(jsii.String("AWS::ApiGateway::DomainName"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::Route53::RecordSet"), jsii.Number(0))
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::BasePathMapping"), jsii.Number(1))
}

func TestApiGatewayStack_ImportBranch(t *testing.T) {
	// Alias attributes win even with a certificate configured: the domain
	// already exists, so nothing is created for it.
	cfg := prodConfig()
	cfg.ExistingDomainAlias = "d-abc123.execute-api.us-east-1.amazonaws.com"
	cfg.ExistingDomainZone = "Z2FDTNDATAQYW2"
	template := synthGateway(t, cfg)

	template.ResourceCountIs(jsii.String("AWS::ApiGateway::DomainName"), jsii.Number(0))
	template.ResourceCountIs(jsii.String("AWS::Route53::RecordSet"), jsii.Number(0))
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::BasePathMapping"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::BasePathMapping"), map[string]interface{}{
		"DomainName": "hooks.example.com",
	})
}

func TestApiGatewayStack_TwoAlarms(t *testing.T) {
	template := synthGateway(t, prodConfig())

	template.ResourceCountIs(jsii.String("AWS::CloudWatch::Alarm"), jsii.Number(2))
	template.HasResourceProperties(jsii.String("AWS::CloudWatch::Alarm"), map[string]interface{}{
		"AlarmName":          "proj-prod-webhook-5xx",
		"Threshold":          5,
		"EvaluationPeriods":  2,
		"Period":             300,
		"Statistic":          "Sum",
		"ComparisonOperator": "GreaterThanOrEqualToThreshold",
		"TreatMissingData":   "notBreaching",
	})
	template.HasResourceProperties(jsii.String("AWS::CloudWatch::Alarm"), map[string]interface{}{
		"AlarmName":         "proj-prod-webhook-latency",
		"Threshold":         5000,
		"EvaluationPeriods": 3,
		"Period":            300,
		"ExtendedStatistic": "p95",
		"TreatMissingData":  "notBreaching",
	})
}

func TestApiGatewayStack_AlarmsNotifyOnEntryAndRecovery(t *testing.T) {
	template := synthGateway(t, prodConfig())

	alarms := template.FindResources(jsii.String("AWS::CloudWatch::Alarm"), nil)
	require.Len(t, *alarms, 2)
	for logicalID, resource := range *alarms {
		properties := (*resource)["Properties"].(map[string]interface{})
		assert.Contains(t, properties, "AlarmActions", "alarm %s has no alarm action", logicalID)
		assert.Contains(t, properties, "OKActions", "alarm %s has no recovery action", logicalID)
	}
}

func TestApiGatewayStack_ParameterRegistry(t *testing.T) {
	template := synthGateway(t, prodConfig())

	template.ResourceCountIs(jsii.String("AWS::SSM::Parameter"), jsii.Number(5))

	expected := []string{
		"/automation/prod/api-gateway/rest-api-id",
		"/automation/prod/api-gateway/rest-api-url",
		"/automation/prod/api-gateway/domain-name",
		"/automation/prod/api-gateway/stage-name",
		"/automation/prod/api-gateway/source-arn",
	}

	parameters := template.FindResources(jsii.String("AWS::SSM::Parameter"), nil)
	published := make([]string, 0, len(*parameters))
	for _, resource := range *parameters {
		properties := (*resource)["Properties"].(map[string]interface{})
		published = append(published, properties["Name"].(string))
	}
	assert.ElementsMatch(t, expected, published)

	template.HasResourceProperties(jsii.String("AWS::SSM::Parameter"), map[string]interface{}{
		"Name":  "/automation/prod/api-gateway/rest-api-url",
		"Value": "https://hooks.example.com/webhook",
	})
	template.HasResourceProperties(jsii.String("AWS::SSM::Parameter"), map[string]interface{}{
		"Name":  "/automation/prod/api-gateway/stage-name",
		"Value": GatewayStageName,
	})
}

func TestApiGatewayStack_DependsOnMessagingStack(t *testing.T) {
	app := awscdk.NewApp(nil)
	stacks := BuildStacks(app, prodConfig())
	require.NotNil(t, stacks.Gateway)

	dependencies := stacks.Gateway.Dependencies()
	require.NotNil(t, dependencies)
	names := make([]string, 0, len(*dependencies))
	for _, dependency := range *dependencies {
		names = append(names, *dependency.StackName())
	}
	assert.Contains(t, names, "DualQueueMessageStack-prod")
}

func TestBuildStacks_GatewayIdempotence(t *testing.T) {
	first := synthGateway(t, prodConfig()).ToJSON()
	second := synthGateway(t, prodConfig()).ToJSON()
	assert.Equal(t, *first, *second)
}
