package orchestrator

import (
	"sync"

	"github.com/amadeus-ai/nexuskit/errors"
)

// Campaign tracks one goal with a token budget.
type Campaign struct {
	ID         string  `json:"id"`
	Goal       string  `json:"goal"`
	Budget     float64 `json:"budget"`
	TokensUsed float64 `json:"tokens_used"`
}

// Remaining returns the unspent token budget.
func (c Campaign) Remaining() float64 {
	return c.Budget - c.TokensUsed
}

// CampaignManager owns campaign registration and token budgeting. Safe for
// concurrent use.
type CampaignManager struct {
	mu        sync.Mutex
	campaigns map[string]*Campaign
	order     []string
}

// NewCampaignManager creates an empty manager.
func NewCampaignManager() *CampaignManager {
	return &CampaignManager{
		campaigns: make(map[string]*Campaign),
	}
}

// Register adds a campaign with a goal and token budget. Registering an
// existing ID replaces its goal and budget but keeps tokens already spent.
func (m *CampaignManager) Register(id, goal string, budget float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.campaigns[id]; ok {
		existing.Goal = goal
		existing.Budget = budget
		return
	}
	m.campaigns[id] = &Campaign{ID: id, Goal: goal, Budget: budget}
	m.order = append(m.order, id)
}

// SpendTokens debits amount from the campaign's budget. It returns an error
// for unknown campaigns and ErrBudgetExhausted when the spend would exceed
// the budget; the budget is left untouched in both cases.
func (m *CampaignManager) SpendTokens(id string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return errors.ErrCampaignUnknown
	}
	if c.TokensUsed+amount > c.Budget {
		return errors.ErrBudgetExhausted
	}
	c.TokensUsed += amount
	return nil
}

// Get returns a snapshot of one campaign.
func (m *CampaignManager) Get(id string) (Campaign, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return Campaign{}, false
	}
	return *c, true
}

// IDs returns campaign IDs in registration order.
func (m *CampaignManager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}
