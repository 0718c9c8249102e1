package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amadeus-ai/nexuskit/errors"
)

func TestRegisterAndSpend(t *testing.T) {
	m := NewCampaignManager()
	m.Register("recon", "map lateral movement", 10)

	require.NoError(t, m.SpendTokens("recon", 4))
	require.NoError(t, m.SpendTokens("recon", 6))

	c, ok := m.Get("recon")
	require.True(t, ok)
	assert.Equal(t, float64(10), c.TokensUsed)
	assert.Equal(t, float64(0), c.Remaining())
}

func TestSpendOverBudget(t *testing.T) {
	m := NewCampaignManager()
	m.Register("recon", "goal", 5)

	require.NoError(t, m.SpendTokens("recon", 5))
	err := m.SpendTokens("recon", 0.5)
	assert.ErrorIs(t, err, errors.ErrBudgetExhausted)

	// A rejected spend leaves the budget untouched.
	c, _ := m.Get("recon")
	assert.Equal(t, float64(5), c.TokensUsed)
}

func TestSpendUnknownCampaign(t *testing.T) {
	m := NewCampaignManager()
	assert.ErrorIs(t, m.SpendTokens("ghost", 1), errors.ErrCampaignUnknown)
}

func TestReregisterKeepsSpentTokens(t *testing.T) {
	m := NewCampaignManager()
	m.Register("recon", "goal", 5)
	require.NoError(t, m.SpendTokens("recon", 3))

	m.Register("recon", "new goal", 20)

	c, _ := m.Get("recon")
	assert.Equal(t, "new goal", c.Goal)
	assert.Equal(t, float64(20), c.Budget)
	assert.Equal(t, float64(3), c.TokensUsed)
	assert.Equal(t, []string{"recon"}, m.IDs())
}

func TestIDsRegistrationOrder(t *testing.T) {
	m := NewCampaignManager()
	m.Register("c", "", 1)
	m.Register("a", "", 1)
	m.Register("b", "", 1)
	assert.Equal(t, []string{"c", "a", "b"}, m.IDs())
}
