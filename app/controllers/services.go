package controllers

import (
	"sync"

	"github.com/ManuelReschke/StudyFox/app/repository"
	"github.com/ManuelReschke/StudyFox/internal/pkg/database"
	"github.com/ManuelReschke/StudyFox/internal/pkg/payment"
	"github.com/ManuelReschke/StudyFox/internal/pkg/quota"
	"github.com/ManuelReschke/StudyFox/internal/pkg/referral"
	"github.com/ManuelReschke/StudyFox/internal/pkg/subscription"
)

var (
	subscriptionService *subscription.Service
	quotaService        *quota.Service
	referralService     *referral.Service
	paymentService      *payment.Service
	servicesOnce        sync.Once
)

// InitializeServices wires the controller layer to its services. Must run
// after the database connection is established.
func InitializeServices() {
	servicesOnce.Do(func() {
		db := database.GetDB()
		repository.InitializeFactory(db)
		subscriptionService = subscription.NewServiceFromDB(db)
		quotaService = quota.NewServiceFromDB(db)
		referralService = referral.NewServiceFromDB(db)
		paymentService = payment.NewServiceFromDB(db)
	})
}
