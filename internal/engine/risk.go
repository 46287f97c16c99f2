package engine

import "github.com/JonMunkholm/mailclean/internal/policy"

// RiskResult holds the list-driven risk flags for one address.
type RiskResult struct {
	RoleAccount bool
	Disposable  bool
	FreeMail    bool
	TestAddress bool
}

// RiskClassifier flags role accounts and disposable domains. It only reads
// the policy; there is no network access.
type RiskClassifier struct {
	policy *policy.Policy
}

// NewRiskClassifier creates a classifier over p.
func NewRiskClassifier(p *policy.Policy) *RiskClassifier {
	return &RiskClassifier{policy: p}
}

// Classify evaluates local against the role lists and domain (ASCII form)
// against the provider lists.
func (c *RiskClassifier) Classify(local, domain string) RiskResult {
	return RiskResult{
		RoleAccount: c.policy.IsRoleLocal(local),
		Disposable:  c.policy.IsDisposable(domain),
		FreeMail:    c.policy.IsFreeMail(domain),
		TestAddress: c.policy.IsTestLocal(local),
	}
}
