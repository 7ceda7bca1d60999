package pipeline

import "slices"

// fallbackScenario is used when neither the config nor the industry names one.
const fallbackScenario = "general"

var industryScenarios = map[string][]string{
	"healthcare": {"appointment", "claims", "prescription", "billing", "medical_info"},
	"finance":    {"account_inquiry", "fraud_alert", "loan", "card_dispute", "wire_transfer"},
	"retail":     {"order_status", "returns", "product_inquiry", "complaint", "loyalty"},
	"telecom":    {"outage", "plan_change", "billing", "tech_support", "activation"},
	"insurance":  {"claims_filing", "policy_inquiry", "coverage", "premium", "renewal"},
	"travel":     {"reservation", "cancellation", "complaint", "rewards", "special_request"},
}

var scenarioNames = map[string]string{
	"appointment":     "Appointment Scheduling",
	"claims":          "Insurance Claims",
	"prescription":    "Prescription Refills",
	"billing":         "Billing Inquiries",
	"medical_info":    "Medical Information",
	"account_inquiry": "Account Inquiry",
	"fraud_alert":     "Fraud Alert",
	"loan":            "Loan Application",
	"card_dispute":    "Card Dispute",
	"wire_transfer":   "Wire Transfer",
	"order_status":    "Order Status",
	"returns":         "Returns & Refunds",
	"product_inquiry": "Product Inquiry",
	"complaint":       "Complaint",
	"loyalty":         "Loyalty Program",
	"outage":          "Service Outage",
	"plan_change":     "Plan Changes",
	"tech_support":    "Technical Support",
	"activation":      "New Activation",
	"claims_filing":   "Claims Filing",
	"policy_inquiry":  "Policy Inquiry",
	"coverage":        "Coverage Questions",
	"premium":         "Premium Payments",
	"renewal":         "Policy Renewal",
	"reservation":     "Reservations",
	"cancellation":    "Cancellations",
	"rewards":         "Loyalty Rewards",
	"special_request": "Special Requests",
}

var (
	customerFirstNames = []string{"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda", "David", "Sarah"}
	customerLastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
	agentFirstNames    = []string{"Emily", "Daniel", "Jessica", "Matthew", "Ashley", "Christopher", "Amanda", "Andrew", "Stephanie", "Joshua"}
	agentLastNames     = []string{"Wilson", "Anderson", "Taylor", "Thomas", "Moore", "Jackson", "White", "Harris", "Clark", "Lewis"}
)

// DefaultScenarios returns the built-in scenario ids for an industry, or nil.
func DefaultScenarios(industry string) []string {
	return slices.Clone(industryScenarios[industry])
}

// ScenarioName returns the display name, or the id itself when unknown.
func ScenarioName(id string) string {
	if name, ok := scenarioNames[id]; ok {
		return name
	}
	return id
}

// Scenario pairs an id with its display name.
type Scenario struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IndustryScenarios lists the default scenarios with display names.
func IndustryScenarios(industry string) []Scenario {
	ids := industryScenarios[industry]
	out := make([]Scenario, 0, len(ids))
	for _, id := range ids {
		out = append(out, Scenario{ID: id, Name: ScenarioName(id)})
	}
	return out
}
