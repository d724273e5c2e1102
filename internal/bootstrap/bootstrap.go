package bootstrap

import (
	"log"
	"os"
	"strings"

	"gorm.io/gorm"

	"pharmacare-backend/internal/auth"
	"pharmacare-backend/internal/config"
	"pharmacare-backend/internal/models"
)

// Run seeds the subscription plan catalog and a super admin user for
// local Docker Compose stacks and fresh deployments.
func Run(db *gorm.DB) {
	if db == nil {
		log.Println("bootstrap: skipping; database not initialized")
		return
	}

	seedSubscriptionPlans(db)
	ensureSuperAdmin(db)
}

// defaultPlans mirrors the tiers the billing side expects to exist.
func defaultPlans() []models.SubscriptionPlan {
	return []models.SubscriptionPlan{
		{
			Name:      "Free Trial",
			Tier:      "free_trial",
			PriceNGN:  0,
			TrialDays: 14,
			Features: models.PlanFeatures{
				"patientLimit":  100,
				"teamSize":      1,
				"reportsExport": false,
			},
		},
		{
			Name:     "Basic",
			Tier:     "basic",
			PriceNGN: 1500000,
			Features: models.PlanFeatures{
				"patientLimit":  500,
				"teamSize":      3,
				"reportsExport": true,
			},
		},
		{
			Name:     "Pro",
			Tier:     "pro",
			PriceNGN: 3500000,
			Features: models.PlanFeatures{
				"patientLimit":  5000,
				"teamSize":      10,
				"reportsExport": true,
			},
		},
		{
			Name:     "Enterprise",
			Tier:     "enterprise",
			PriceNGN: 10000000,
			Features: models.PlanFeatures{
				"patientLimit":  -1,
				"teamSize":      -1,
				"reportsExport": true,
			},
		},
	}
}

func seedSubscriptionPlans(db *gorm.DB) {
	for _, plan := range defaultPlans() {
		var existing models.SubscriptionPlan
		if err := db.Where("name = ?", plan.Name).First(&existing).Error; err == nil {
			continue
		}
		if err := db.Create(&plan).Error; err != nil {
			log.Printf("bootstrap: failed to create plan %q: %v", plan.Name, err)
			continue
		}
		log.Printf("bootstrap: created subscription plan %q (ID %d)", plan.Name, plan.ID)
	}
}

func ensureSuperAdmin(db *gorm.DB) {
	email := strings.TrimSpace(config.GetEnv("ADMIN_EMAIL", "admin@pharmacare.local"))

	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err == nil {
		if user.Role != models.RoleSuperAdmin {
			user.Role = models.RoleSuperAdmin
			if err := db.Save(&user).Error; err != nil {
				log.Printf("bootstrap: failed to promote %s to super admin: %v", email, err)
			}
		}
		return
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Printf("bootstrap: ADMIN_PASSWORD not set, skipping super admin creation for %s", email)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Printf("bootstrap: failed to hash admin password: %v", err)
		return
	}

	user = models.User{
		Email:     email,
		Password:  hash,
		FirstName: "Super",
		LastName:  "Admin",
		Role:      models.RoleSuperAdmin,
		Status:    "active",
	}
	if err := db.Create(&user).Error; err != nil {
		log.Printf("bootstrap: failed to create super admin %s: %v", email, err)
		return
	}

	log.Printf("bootstrap: created super admin %s (ID %d)", user.Email, user.ID)
}
