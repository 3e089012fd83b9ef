package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() Registry {
	return Registry{
		Default: "staging",
		Environments: map[string]EnvironmentConfig{
			"dev": {
				AccountID: "111111111111",
				Region:    "us-east-1",
			},
			"staging": {
				AccountID: "222222222222",
				Region:    "us-east-1",
			},
			"prod": {
				AccountID: "333333333333",
				Region:    "us-east-1",
			},
		},
	}
}

func TestResolve_FallbackOrder(t *testing.T) {
	tests := []struct {
		name      string
		registry  Registry
		requested string
		wantName  string
	}{
		{"explicit request wins", testRegistry(), "prod", "prod"},
		{"registry default when nothing requested", testRegistry(), "", "staging"},
		{
			"dev fallback when registry has no default",
			Registry{Environments: testRegistry().Environments},
			"",
			"dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(tt.registry, tt.requested, "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, cfg.EnvironmentName)
		})
	}
}

func TestResolve_EmptyRegistry(t *testing.T) {
	_, err := Resolve(Registry{}, "dev", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no environments configured")
}

func TestResolve_UnknownEnvironment(t *testing.T) {
	_, err := Resolve(testRegistry(), "sandbox", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown environment "sandbox"`)
	// The error enumerates the valid alternatives.
	assert.Contains(t, err.Error(), "dev, prod, staging")
}

func TestResolve_AccountMismatch(t *testing.T) {
	_, err := Resolve(testRegistry(), "prod", "999999999999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999999999999")
	assert.Contains(t, err.Error(), "333333333333")
}

func TestResolve_AccountMatchAccepted(t *testing.T) {
	cfg, err := Resolve(testRegistry(), "prod", "333333333333")
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.EnvironmentName)
}

func TestResolve_AppliesDefaults(t *testing.T) {
	cfg, err := Resolve(testRegistry(), "dev", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultProject, cfg.Project)
	assert.Equal(t, DefaultThrottlingRateLimit, cfg.ThrottlingRateLimit)
	assert.Equal(t, DefaultThrottlingBurstLimit, cfg.ThrottlingBurstLimit)
}

func TestResolve_RejectsInvalidTuning(t *testing.T) {
	reg := testRegistry()
	env := reg.Environments["dev"]
	env.OrderQueue = QueueTuning{VisibilityTimeoutSeconds: -1}
	reg.Environments["dev"] = env

	_, err := Resolve(reg, "dev", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "visibility timeout")
}

func TestQueueSettings_Defaults(t *testing.T) {
	var cfg EnvironmentConfig

	order := cfg.orderQueueSettings()
	assert.Equal(t, DefaultOrderVisibilityTimeoutSeconds, order.VisibilityTimeoutSeconds)
	assert.Equal(t, DefaultMaxReceiveCount, order.MaxReceiveCount)

	result := cfg.resultQueueSettings()
	assert.Equal(t, DefaultResultVisibilityTimeoutSeconds, result.VisibilityTimeoutSeconds)
	assert.Equal(t, DefaultMaxReceiveCount, result.MaxReceiveCount)
}

func TestQueueSettings_Overrides(t *testing.T) {
	cfg := EnvironmentConfig{
		OrderQueue:  QueueTuning{VisibilityTimeoutSeconds: 600, MaxReceiveCount: 5},
		ResultQueue: QueueTuning{MaxReceiveCount: 2},
	}

	order := cfg.orderQueueSettings()
	assert.Equal(t, 600, order.VisibilityTimeoutSeconds)
	assert.Equal(t, 5, order.MaxReceiveCount)

	result := cfg.resultQueueSettings()
	assert.Equal(t, DefaultResultVisibilityTimeoutSeconds, result.VisibilityTimeoutSeconds)
	assert.Equal(t, 2, result.MaxReceiveCount)
}

func TestDomainBinding_Variants(t *testing.T) {
	tests := []struct {
		name string
		cfg  EnvironmentConfig
		want DomainBindingKind
	}{
		{
			"import when both alias attributes are set",
			EnvironmentConfig{ExistingDomainAlias: "d-abc.execute-api.us-east-1.amazonaws.com", ExistingDomainZone: "Z2FDTNDATAQYW2"},
			DomainBindingImport,
		},
		{
			"import wins over a configured certificate",
			EnvironmentConfig{
				CertificateARN:      "arn:aws:acm:us-east-1:111111111111:certificate/abc",
				ExistingDomainAlias: "d-abc.execute-api.us-east-1.amazonaws.com",
				ExistingDomainZone:  "Z2FDTNDATAQYW2",
			},
			DomainBindingImport,
		},
		{
			"create when alias attributes are absent",
			EnvironmentConfig{CertificateARN: "arn:aws:acm:us-east-1:111111111111:certificate/abc"},
			DomainBindingCreate,
		},
		{
			"create when only one alias attribute is set",
			EnvironmentConfig{ExistingDomainAlias: "d-abc.execute-api.us-east-1.amazonaws.com"},
			DomainBindingCreate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DomainBinding().Kind)
		})
	}
}

func TestGatewayEnabled(t *testing.T) {
	base := EnvironmentConfig{
		DomainName:     "hooks.example.com",
		HostedZoneID:   "Z0000000000000000000A",
		HostedZoneName: "example.com",
	}

	withCert := base
	withCert.CertificateARN = "arn:aws:acm:us-east-1:111111111111:certificate/abc"
	assert.True(t, withCert.GatewayEnabled())

	withImport := base
	withImport.ExistingDomainAlias = "d-abc.execute-api.us-east-1.amazonaws.com"
	withImport.ExistingDomainZone = "Z2FDTNDATAQYW2"
	assert.True(t, withImport.GatewayEnabled())

	// Incomplete configurations toggle the component off, they do not fail.
	assert.False(t, base.GatewayEnabled())
	noDomain := withCert
	noDomain.DomainName = ""
	assert.False(t, noDomain.GatewayEnabled())
	assert.False(t, EnvironmentConfig{}.GatewayEnabled())
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{"dev", "prod", "staging"}, testRegistry().Names())
}
