package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Workplace roles
const (
	WorkplaceRoleOwner = "owner"
	WorkplaceRoleStaff = "staff"
)

// User roles
const (
	RoleSuperAdmin = "super_admin"
	RolePharmacist = "pharmacist"
)

// License review states
const (
	LicenseStatusPending  = "pending"
	LicenseStatusApproved = "approved"
	LicenseStatusRejected = "rejected"
)

// Workplace verification states
const (
	VerificationVerified   = "verified"
	VerificationUnverified = "unverified"
)

// Workspace subscription states
const (
	SubscriptionStatusTrial    = "trial"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusExpired  = "expired"
	SubscriptionStatusCanceled = "canceled"
)

type User struct {
	ID                    uint       `json:"id" gorm:"primaryKey"`
	Email                 string     `json:"email" gorm:"uniqueIndex"`
	Password              string     `json:"-"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	Role                  string     `json:"role" gorm:"default:'pharmacist'"`
	Status                string     `json:"status" gorm:"default:'active'"`
	WorkplaceID           *uint      `json:"workplace_id" gorm:"index"`
	WorkplaceRole         string     `json:"workplace_role"`
	CurrentSubscriptionID *uint      `json:"current_subscription_id" gorm:"index"` // legacy, cleared by migration
	LicenseNumber         string     `json:"license_number"`
	LicenseStatus         string     `json:"license_status" gorm:"default:'pending'"`
	LastLoginAt           *time.Time `json:"last_login_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// WorkplaceStats carries denormalized workspace counters.
type WorkplaceStats struct {
	PatientsCount int        `json:"patientsCount"`
	UsersCount    int        `json:"usersCount"`
	LastUpdated   *time.Time `json:"lastUpdated"`
}

// WorkplaceSettings carries workspace-level preferences.
type WorkplaceSettings struct {
	MaxPendingInvites   int  `json:"maxPendingInvites"`
	AllowSharedPatients bool `json:"allowSharedPatients"`
}

// WorkplaceLocation is one physical pharmacy location.
type WorkplaceLocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	IsPrimary bool   `json:"isPrimary"`
}

// Workplace represents a pharmacy workspace that owns a subscription
// and groups its team members.
type Workplace struct {
	ID                    uint                `json:"id" gorm:"primaryKey"`
	Name                  string              `json:"name"`
	Type                  string              `json:"type" gorm:"default:'Community'"`
	Address               string              `json:"address"`
	LicenseNumber         string              `json:"license_number"`
	InviteCode            string              `json:"invite_code" gorm:"index"`
	VerificationStatus    string              `json:"verification_status" gorm:"default:'unverified'"`
	OwnerID               uint                `json:"owner_id" gorm:"index"`
	TeamMembers           StringArray         `json:"team_members" gorm:"type:text[]"`
	CurrentSubscriptionID *uint               `json:"current_subscription_id" gorm:"index"`
	CurrentPlanID         *uint               `json:"current_plan_id"`
	SubscriptionStatus    string              `json:"subscription_status"`
	TrialEndDate          *time.Time          `json:"trial_end_date"`
	Stats                 *WorkplaceStats     `json:"stats" gorm:"type:jsonb;serializer:json"`
	Settings              *WorkplaceSettings  `json:"settings" gorm:"type:jsonb;serializer:json"`
	Locations             []WorkplaceLocation `json:"locations" gorm:"type:jsonb;serializer:json"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// HasTeamMember reports whether the given user appears in the
// workspace's team member list.
func (w *Workplace) HasTeamMember(userID uint) bool {
	id := strconv.FormatUint(uint64(userID), 10)
	for _, member := range w.TeamMembers {
		if member == id {
			return true
		}
	}
	return false
}

// AddTeamMember appends a user to the team member list if absent.
func (w *Workplace) AddTeamMember(userID uint) {
	if !w.HasTeamMember(userID) {
		w.TeamMembers = append(w.TeamMembers, strconv.FormatUint(uint64(userID), 10))
	}
}

// SubscriptionLimits captures plan limits re-derived for a workspace
// context. Per-seat limits are nil when unlimited or not yet derived.
type SubscriptionLimits struct {
	Patients  *int `json:"patients"`
	Users     *int `json:"users"`
	Locations int  `json:"locations"`
	Storage   *int `json:"storage"`
	APICalls  *int `json:"apiCalls"`
}

// PaymentRecord is one entry in a subscription's payment history.
type PaymentRecord struct {
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Reference string    `json:"reference"`
	PaidAt    time.Time `json:"paidAt"`
}

// Subscription represents a plan subscription. Ownership is mutually
// exclusive: UserID (legacy individual) or WorkplaceID (migrated),
// never both once the workspace migration has completed.
type Subscription struct {
	ID              uint                `json:"id" gorm:"primaryKey"`
	UserID          *uint               `json:"user_id" gorm:"index"`
	WorkplaceID     *uint               `json:"workplace_id" gorm:"index"`
	PlanID          uint                `json:"plan_id" gorm:"index"`
	Status          string              `json:"status" gorm:"default:'trial'"`
	Tier            string              `json:"tier" gorm:"default:'free_trial'"`
	StartDate       time.Time           `json:"start_date"`
	EndDate         time.Time           `json:"end_date"`
	TrialEndDate    *time.Time          `json:"trial_end_date"`
	BillingInterval string              `json:"billing_interval" gorm:"default:'monthly'"`
	PriceAtPurchase int64               `json:"price_at_purchase"` // in kobo
	AutoRenew       bool                `json:"auto_renew" gorm:"default:true"`
	PaymentHistory  []PaymentRecord     `json:"payment_history" gorm:"type:jsonb;serializer:json"`
	UsageMetrics    map[string]int64    `json:"usage_metrics" gorm:"type:jsonb;serializer:json"`
	Limits          *SubscriptionLimits `json:"limits" gorm:"type:jsonb;serializer:json"`
	Features        StringArray         `json:"features" gorm:"type:text[]"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// SubscriptionPlan is the catalog entry subscriptions point at. The
// workspace migration reads plans for referential checks but never
// mutates them.
type SubscriptionPlan struct {
	ID              uint         `json:"id" gorm:"primaryKey"`
	Name            string       `json:"name" gorm:"uniqueIndex"`
	Tier            string       `json:"tier"`
	PriceNGN        int64        `json:"price_ngn"` // in kobo
	BillingInterval string       `json:"billing_interval" gorm:"default:'monthly'"`
	Features        PlanFeatures `json:"features" gorm:"type:jsonb"`
	TrialDays       int          `json:"trial_days" gorm:"default:14"`
	Active          bool         `json:"active" gorm:"default:true"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// MigrationError is one recorded per-item failure inside a migration run.
type MigrationError struct {
	ItemID    string    `json:"itemId"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// MigrationProgress persists the state of a named migration run so an
// interrupted run can be inspected. One row per migration name,
// overwritten wholesale on each save.
type MigrationProgress struct {
	ID              uint             `json:"id" gorm:"primaryKey"`
	MigrationName   string           `json:"migration_name" gorm:"uniqueIndex"`
	TotalItems      int              `json:"total_items"`
	ProcessedItems  int              `json:"processed_items"`
	SuccessfulItems int              `json:"successful_items"`
	FailedItems     int              `json:"failed_items"`
	CurrentBatch    int              `json:"current_batch"`
	TotalBatches    int              `json:"total_batches"`
	Errors          []MigrationError `json:"errors" gorm:"type:jsonb;serializer:json"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// MigrationBackup records a collection snapshot taken before a
// destructive migration run. Snapshot storage itself lives outside the
// application; this row is bookkeeping only.
type MigrationBackup struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	MigrationName string    `json:"migration_name" gorm:"index"`
	Collection    string    `json:"collection"`
	DocumentCount int64     `json:"document_count"`
	Location      string    `json:"location"`
	CreatedAt     time.Time `json:"created_at"`
}

// PlanFeatures is a JSON field for plan feature flags
type PlanFeatures map[string]interface{}

// Value implements the driver.Valuer interface
func (f PlanFeatures) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements the sql.Scanner interface
func (f *PlanFeatures) Scan(value interface{}) error {
	if value == nil {
		*f = make(PlanFeatures)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return errors.New("cannot scan into PlanFeatures")
	}
}

// StringArray is a custom type for PostgreSQL text[] arrays
type StringArray []string

// Value implements the driver.Valuer interface for StringArray
func (sa StringArray) Value() (driver.Value, error) {
	if len(sa) == 0 {
		return nil, nil
	}
	var quoted []string
	for _, s := range sa {
		quoted = append(quoted, `"`+strings.ReplaceAll(s, `"`, `\"`)+`"`)
	}
	return "{" + strings.Join(quoted, ",") + "}", nil
}

// Scan implements the sql.Scanner interface for StringArray
func (sa *StringArray) Scan(value interface{}) error {
	if value == nil {
		*sa = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		return sa.scanString(v)
	case []byte:
		return sa.scanString(string(v))
	default:
		return errors.New("cannot scan into StringArray")
	}
}

func (sa *StringArray) scanString(v string) error {
	if v == "" {
		*sa = StringArray{}
		return nil
	}
	if strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") {
		content := v[1 : len(v)-1]
		if content == "" {
			*sa = StringArray{}
			return nil
		}
		var items []string
		for _, item := range strings.Split(content, ",") {
			item = strings.TrimSpace(item)
			item = strings.TrimPrefix(item, `"`)
			item = strings.TrimSuffix(item, `"`)
			items = append(items, strings.ReplaceAll(item, `\"`, `"`))
		}
		*sa = items
		return nil
	}
	// Fall back to JSON arrays written by older releases.
	var items []string
	if err := json.Unmarshal([]byte(v), &items); err != nil {
		return err
	}
	*sa = items
	return nil
}
