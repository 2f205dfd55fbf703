package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditListLimit(t *testing.T) {
	assert.Equal(t, DefaultAuditListLimit, AuditListLimit(0))
	assert.Equal(t, DefaultAuditListLimit, AuditListLimit(-3))
	assert.Equal(t, 7, AuditListLimit(7))
	assert.Equal(t, MaxAuditListLimit, AuditListLimit(MaxAuditListLimit+1))
}

func TestAuditLoggerRequiresPool(t *testing.T) {
	var nilLogger *AuditLogger
	_, err := nilLogger.List(context.Background(), 10)
	require.Error(t, err)

	_, err = NewAuditLogger(nil).List(context.Background(), 10)
	require.Error(t, err)

	err = nilLogger.Record(context.Background(), AuditLog{Message: "x"})
	require.Error(t, err)
}
