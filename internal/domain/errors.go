package domain

import "errors"

var errInvalidComparisonWindow = errors.New("comparison_period_days must be >= 1 for percentage_change alerts")
