package billing

import "errors"

var (
	ErrRecordNotFound        = errors.New("subscription record not found")
	ErrInvalidCatalog        = errors.New("invalid plan catalog")
	ErrPlanNotConfigured     = errors.New("no plan configured for tier")
	ErrFailedToLoadCatalog   = errors.New("failed to load plan catalog")
	ErrFailedToLoadRecords   = errors.New("failed to load subscription records")
	ErrMissingUserID         = errors.New("user id is required")
	ErrMissingSubscriptionID = errors.New("subscription id is required")
	ErrRecordAlreadyExists   = errors.New("subscription record already exists")
	ErrStoreRequired         = errors.New("subscription store is required")
	ErrClassifierRequired    = errors.New("price classifier is required")
	ErrCatalogSourceRequired = errors.New("plan catalog source is required")
)
