// Package filing holds the filing-request domain: the record and its
// attachments, draft validation, storage key rules and the status state
// machine that gates every mutation.
package filing

import "time"

// Status of a filing request.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusAssigned   Status = "assigned"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusAssigned, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IncomeType is the primary income category declared by the owner.
type IncomeType string

const (
	IncomeLabour             IncomeType = "labour_income"
	IncomeBusinessSimple     IncomeType = "business_income_simple_book"
	IncomeBusinessDouble     IncomeType = "business_income_double_entry"
	IncomeFreelancer         IncomeType = "freelancer_3_3"
	IncomeOther              IncomeType = "other_income"
	IncomeHousingRental      IncomeType = "housing_rental_income"
	IncomeForeign            IncomeType = "foreign_income"
	IncomeInquiryOrUndecided IncomeType = "inquiry_other"
)

// IncomeTypes lists the accepted income types in display order.
var IncomeTypes = []IncomeType{
	IncomeLabour,
	IncomeBusinessSimple,
	IncomeBusinessDouble,
	IncomeFreelancer,
	IncomeOther,
	IncomeHousingRental,
	IncomeForeign,
	IncomeInquiryOrUndecided,
}

// PaymentStatus is stored and returned but carries no behaviour.
type PaymentStatus string

const PaymentPending PaymentStatus = "pending"

// AttachedFile describes one uploaded object referenced by a request.
type AttachedFile struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
	Checksum   string    `json:"checksum,omitempty"`
}

// Request is a taxpayer's filing case.
type Request struct {
	ID                     string         `json:"id"`
	OwnerID                string         `json:"ownerId"`
	AssignedProfessionalID *string        `json:"assignedProfessionalId"`
	TaxYear                int            `json:"taxYear"`
	IncomeType             IncomeType     `json:"incomeType"`
	EstimatedIncome        *float64       `json:"estimatedIncome"`
	Details                *string        `json:"details"`
	Status                 Status         `json:"status"`
	AttachedFiles          []AttachedFile `json:"attachedFiles"`
	Fee                    *float64       `json:"fee"`
	PaymentStatus          PaymentStatus  `json:"paymentStatus"`
	CreatedAt              time.Time      `json:"createdAt"`
}

// AssignedTo reports whether professionalID is the assigned professional.
func (r *Request) AssignedTo(professionalID string) bool {
	return professionalID != "" && r.AssignedProfessionalID != nil && *r.AssignedProfessionalID == professionalID
}

// FindFile returns the attachment stored under path.
func (r *Request) FindFile(path string) (AttachedFile, bool) {
	for _, f := range r.AttachedFiles {
		if f.Path == path {
			return f, true
		}
	}
	return AttachedFile{}, false
}

// MergeFiles appends incoming to existing, de-duplicated by path. A later
// entry with the same path replaces the earlier one in place.
func MergeFiles(existing, incoming []AttachedFile) []AttachedFile {
	out := make([]AttachedFile, 0, len(existing)+len(incoming))
	pos := make(map[string]int, len(existing)+len(incoming))
	for _, list := range [][]AttachedFile{existing, incoming} {
		for _, f := range list {
			if i, ok := pos[f.Path]; ok {
				out[i] = f
				continue
			}
			pos[f.Path] = len(out)
			out = append(out, f)
		}
	}
	return out
}

// WithoutFile returns files minus the entry stored under path.
func WithoutFile(files []AttachedFile, path string) []AttachedFile {
	out := make([]AttachedFile, 0, len(files))
	for _, f := range files {
		if f.Path != path {
			out = append(out, f)
		}
	}
	return out
}

// Dashboard summarises a professional's workload.
type Dashboard struct {
	Assigned   int       `json:"assigned"`
	Processing int       `json:"processing"`
	Completed  int       `json:"completed"`
	Recent     []Request `json:"recent"`
}
