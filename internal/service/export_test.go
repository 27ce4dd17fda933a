package service

import "time"

// SetBcryptCost lowers the hashing cost for tests.
func SetBcryptCost(cost int) { bcryptCost = cost }

func (s *PortalService) SetClock(now func() time.Time) { s.now = now }

func (s *AuthService) SetClock(now func() time.Time) { s.now = now }

const MaxActivity = maxActivity

var LogActivity = logActivity
