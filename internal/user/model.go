package user

import "time"

// Record is the usage row kept for one chat user.
type Record struct {
	UserID    int64     `db:"user_id"`
	FirstName string    `db:"first_name"`
	Username  string    `db:"username"`
	ChatCount int64     `db:"chat_count"`
	FirstSeen time.Time `db:"first_seen"`
	LastSeen  time.Time `db:"last_seen"`
}

// Profile is the identity carried by an inbound message.
// Username is empty when the user has none.
type Profile struct {
	UserID    int64
	FirstName string
	Username  string
}

// Summary is the aggregate shown to the administrator.
type Summary struct {
	Total  int64
	Recent []Record
}

// RecentLimit is the number of users listed in a Summary.
const RecentLimit = 10
