package models

import "time"

// ReviewPriority controls how quickly a vendor application must be reviewed.
type ReviewPriority string

const (
	PriorityStandard   ReviewPriority = "standard"
	PriorityExpedited  ReviewPriority = "expedited"
	PriorityEnterprise ReviewPriority = "enterprise"
)

// ApplicationStatus is the review lifecycle state of a vendor application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationInReview ApplicationStatus = "in_review"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Application is a vendor's request to join the marketplace. The risk
// calculator and the review SLA sweeper both operate on this snapshot;
// neither stores derived results back onto it.
type Application struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"company_name"`
	Website     string    `json:"website,omitempty"`
	FoundedAt   time.Time `json:"founded_at,omitzero"`
	TeamSize    int       `json:"team_size"`
	// MinimumOrderValue is the smallest order the vendor will accept, in cents.
	MinimumOrderValue int      `json:"minimum_order_value"`
	CompanyValues     []string `json:"company_values,omitempty"`
	Certifications    []string `json:"certifications,omitempty"`
	Categories        []string `json:"categories,omitempty"`

	// Compliance documents uploaded with the application.
	HasInsuranceCertificate bool `json:"has_insurance_certificate"`
	HasBusinessLicense      bool `json:"has_business_license"`

	Status      ApplicationStatus `json:"status"`
	Priority    ReviewPriority    `json:"priority"`
	SubmittedAt time.Time         `json:"submitted_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
