package domain

import "time"

// LoginRecord is one successful-login audit entry. Writing it is
// best-effort; a failed write never fails the login that produced it.
type LoginRecord struct {
	ID       string
	Username string
	Origin   string // caller IP at login time
	At       time.Time
}
