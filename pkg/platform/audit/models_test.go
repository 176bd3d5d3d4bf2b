package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditEventCategory(t *testing.T) {
	assert.Equal(t, CategoryCompliance, EventBudgetConsumed.Category())
	assert.Equal(t, CategoryCompliance, EventBudgetRenewed.Category())
	assert.Equal(t, CategorySecurity, EventQueryRejected.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("something_else").Category())
}
