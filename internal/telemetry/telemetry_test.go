package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/studybuddy/config"
)

func TestInit_DisabledReturnsNoop(t *testing.T) {
	p, err := Init(config.TelemetryConfig{Enabled: false}, nil)
	require.NoError(t, err)
	require.NotNil(t, p)

	// noop Providers 不持有任何导出器，Shutdown 立即返回
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdown_NilProvidersIsSafe(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制里版本是 (devel) 或空，都应回落为 dev
	assert.Equal(t, "dev", buildVersion())
}
