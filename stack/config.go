// Package stack provides the CDK stacks for the task-pipeline messaging backbone.
package stack

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

// QueueTuning carries the per-environment overrides for a primary queue. Zero
// values mean "use the default".
type QueueTuning struct {
	VisibilityTimeoutSeconds int
	MaxReceiveCount          int
}

// EnvironmentConfig is the resolved, immutable configuration for one deployment
// target. It is produced once by Resolve and passed by value to every builder;
// no component reads ambient context after resolution.
type EnvironmentConfig struct {
	Project         string
	AccountID       string
	Region          string
	EnvironmentName string
	Tags            map[string]string

	OrderQueue  QueueTuning
	ResultQueue QueueTuning

	// Gateway domain configuration. The gateway stack is instantiated only
	// when DomainName, hosted-zone data and either a certificate or an
	// alias-import pair are all present.
	CertificateARN       string
	HostedZoneID         string
	HostedZoneName       string
	DomainName           string
	ExistingDomainAlias  string
	ExistingDomainZone   string
	CreateDNSRecord      bool
	ThrottlingRateLimit  int
	ThrottlingBurstLimit int
}

// DomainBindingKind selects how the gateway's custom domain is provided.
type DomainBindingKind string

const (
	// DomainBindingCreate provisions a new domain bound to an ACM certificate.
	DomainBindingCreate DomainBindingKind = "create"
	// DomainBindingImport binds to an externally created domain by its alias
	// attributes; no domain resource and no DNS record are created.
	DomainBindingImport DomainBindingKind = "import"
)

// DomainBinding is the tagged variant resolved once at configuration time.
// Exactly one variant is active per gateway deployment.
type DomainBinding struct {
	Kind DomainBindingKind

	// Create variant.
	CertificateARN string

	// Import variant.
	AliasTarget string
	AliasZone   string
}

// DomainBinding resolves the active variant. Import wins when both alias
// attributes are supplied; everything else is a create.
func (c EnvironmentConfig) DomainBinding() DomainBinding {
	if c.ExistingDomainAlias != "" && c.ExistingDomainZone != "" {
		return DomainBinding{
			Kind:        DomainBindingImport,
			AliasTarget: c.ExistingDomainAlias,
			AliasZone:   c.ExistingDomainZone,
		}
	}
	return DomainBinding{
		Kind:           DomainBindingCreate,
		CertificateARN: c.CertificateARN,
	}
}

// GatewayEnabled reports whether the environment carries a complete domain
// configuration. A missing configuration is a feature toggle, not an error.
func (c EnvironmentConfig) GatewayEnabled() bool {
	if c.DomainName == "" || c.HostedZoneID == "" || c.HostedZoneName == "" {
		return false
	}
	b := c.DomainBinding()
	return b.Kind == DomainBindingImport || b.CertificateARN != ""
}

// Registry maps environment names to their configuration, plus the fallback
// environment name used when the caller does not request one.
type Registry struct {
	Environments map[string]EnvironmentConfig
	Default      string
}

// Names returns the configured environment names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.Environments))
	for name := range r.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve picks the target environment (requested > registry default > "dev"),
// validates it against the externally supplied account identifier and applies
// defaults. It fails before any resource is constructed.
func Resolve(reg Registry, requested, providedAccountID string) (EnvironmentConfig, error) {
	if len(reg.Environments) == 0 {
		return EnvironmentConfig{}, fmt.Errorf("no environments configured: supply an environment registry before deploying")
	}

	name := requested
	if name == "" {
		name = reg.Default
	}
	if name == "" {
		name = DefaultEnvironmentName
	}

	cfg, ok := reg.Environments[name]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("unknown environment %q: available environments are %s",
			name, strings.Join(reg.Names(), ", "))
	}
	cfg.EnvironmentName = name

	if providedAccountID != "" && providedAccountID != cfg.AccountID {
		return EnvironmentConfig{}, fmt.Errorf("account mismatch for environment %q: deploying with account %s but configuration expects %s",
			name, providedAccountID, cfg.AccountID)
	}

	if cfg.Project == "" {
		cfg.Project = DefaultProject
	}
	if cfg.ThrottlingRateLimit == 0 {
		cfg.ThrottlingRateLimit = DefaultThrottlingRateLimit
	}
	if cfg.ThrottlingBurstLimit == 0 {
		cfg.ThrottlingBurstLimit = DefaultThrottlingBurstLimit
	}

	for _, tuning := range []struct {
		queue string
		t     QueueTuning
	}{
		{"order", cfg.OrderQueue},
		{"result", cfg.ResultQueue},
	} {
		if tuning.t.VisibilityTimeoutSeconds < 0 {
			return EnvironmentConfig{}, fmt.Errorf("environment %q: %s queue visibility timeout must be positive, got %d",
				name, tuning.queue, tuning.t.VisibilityTimeoutSeconds)
		}
		if tuning.t.MaxReceiveCount < 0 {
			return EnvironmentConfig{}, fmt.Errorf("environment %q: %s queue max receive count must be at least 1, got %d",
				name, tuning.queue, tuning.t.MaxReceiveCount)
		}
	}

	return cfg, nil
}

// LoadRegistry decodes the environment registry from CDK context (the
// "environments" and "defaultEnvironment" keys of cdk.json).
func LoadRegistry(app awscdk.App) (Registry, error) {
	reg := Registry{Environments: map[string]EnvironmentConfig{}}

	if v := app.Node().TryGetContext(jsii.String("defaultEnvironment")); v != nil {
		name, ok := v.(string)
		if !ok {
			return Registry{}, fmt.Errorf("context key defaultEnvironment must be a string, got %T", v)
		}
		reg.Default = name
	}

	raw := app.Node().TryGetContext(jsii.String("environments"))
	if raw == nil {
		return reg, nil
	}
	envs, ok := raw.(map[string]interface{})
	if !ok {
		return Registry{}, fmt.Errorf("context key environments must be a map, got %T", raw)
	}

	for name, entry := range envs {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return Registry{}, fmt.Errorf("environment %q must be a map, got %T", name, entry)
		}
		cfg := EnvironmentConfig{
			Project:             contextString(fields, "project"),
			AccountID:           contextString(fields, "accountId"),
			Region:              contextString(fields, "region"),
			EnvironmentName:     name,
			CertificateARN:      contextString(fields, "certificateArn"),
			HostedZoneID:        contextString(fields, "hostedZoneId"),
			HostedZoneName:      contextString(fields, "hostedZoneName"),
			DomainName:          contextString(fields, "domainName"),
			ExistingDomainAlias: contextString(fields, "existingDomainAlias"),
			ExistingDomainZone:  contextString(fields, "existingDomainZone"),
			CreateDNSRecord:     contextBool(fields, "createDnsRecord"),
		}
		if tags, ok := fields["tags"].(map[string]interface{}); ok {
			cfg.Tags = make(map[string]string, len(tags))
			for k, v := range tags {
				if s, ok := v.(string); ok {
					cfg.Tags[k] = s
				}
			}
		}
		if q, ok := fields["orderQueue"].(map[string]interface{}); ok {
			cfg.OrderQueue = QueueTuning{
				VisibilityTimeoutSeconds: contextInt(q, "visibilityTimeout"),
				MaxReceiveCount:          contextInt(q, "maxReceiveCount"),
			}
		}
		if q, ok := fields["resultQueue"].(map[string]interface{}); ok {
			cfg.ResultQueue = QueueTuning{
				VisibilityTimeoutSeconds: contextInt(q, "visibilityTimeout"),
				MaxReceiveCount:          contextInt(q, "maxReceiveCount"),
			}
		}
		if cfg.AccountID == "" || cfg.Region == "" {
			return Registry{}, fmt.Errorf("environment %q must set accountId and region", name)
		}
		reg.Environments[name] = cfg
	}

	return reg, nil
}

func contextString(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func contextBool(fields map[string]interface{}, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

func contextInt(fields map[string]interface{}, key string) int {
	// cdk.json numbers arrive as float64 through the context round trip.
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
