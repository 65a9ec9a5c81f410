package models

import "time"

// User is a registered account. Password holds the bcrypt hash, never plaintext.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// Report is a single bloom sighting uploaded by a user.
type Report struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	ImageFilename string `json:"image_filename"`
	Location      string `json:"location"`
	DateTime      string `json:"date_time"`
	FlowerName    string `json:"flower_name"`
	Intensity     string `json:"intensity"`
}

// ReportFields are the user-editable text fields of a Report.
type ReportFields struct {
	Location   string `json:"location"`
	DateTime   string `json:"date_time"`
	FlowerName string `json:"flower_name"`
	Intensity  string `json:"intensity"`
}

// Session is a server-side login session keyed by an opaque token.
type Session struct {
	Token     string
	UserID    int64
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}
