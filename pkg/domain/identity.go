package domain

// Plan names the billing tier a tenant is on. Quota ceilings are keyed by plan.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanBusiness   Plan = "business"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) IsValid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanBusiness, PlanEnterprise:
		return true
	}
	return false
}

// TenantIdentity is the resolved caller identity handed to the admission core by
// the upstream authentication step. SecretFingerprint is a one-way hash of the
// tenant's shared secret; the raw secret is never stored or carried here.
//
// An empty SecretFingerprint marks a pre-migration tenant that has not rotated
// onto signed requests yet; the signature verifier lets those through on an
// explicitly flagged legacy path.
type TenantIdentity struct {
	TenantID          TenantID
	UserID            UserID
	Plan              Plan
	SecretFingerprint string
}
