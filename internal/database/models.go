package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// User roles and statuses stored as plain strings.
const (
	RoleTourist = "tourist"
	RoleStudent = "student"
	RoleLocal   = "local"

	StatusNovice = "novice"
	StatusExpert = "expert"
	StatusLegend = "legend"
)

// Review lifecycle statuses.
const (
	ReviewStatusPending   = "pending"
	ReviewStatusPublished = "published"
	ReviewStatusRejected  = "rejected"
)

// City is a city users can register in. Inactive cities are hidden from
// registration and city-change keyboards.
type City struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

// User is a registered bot user, keyed by Telegram ID.
type User struct {
	TelegramID       int64         `db:"telegram_id"`
	Username         string        `db:"username"`
	FullName         string        `db:"full_name"`
	CityID           sql.NullInt64 `db:"city_id"`
	Role             string        `db:"role"`
	Status           string        `db:"status"`
	BalanceRequests  int           `db:"balance_requests"`
	AIRequestBalance int           `db:"ai_requests_balance"`
	ReputationPoints int           `db:"reputation_points"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

// Category is a place category (food, sights, nightlife, ...).
type Category struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Slug string `db:"slug"`
}

// Place is a reviewable location inside a city. AvgRating and ReviewCount
// are aggregates maintained by the review publication transaction.
type Place struct {
	ID            int64           `db:"id"`
	Name          string          `db:"name"`
	Address       string          `db:"address"`
	CityID        int64           `db:"city_id"`
	CategoryID    sql.NullInt64   `db:"category_id"`
	GooglePlaceID sql.NullString  `db:"google_place_id"`
	Location      string          `db:"location"`
	AvgRating     float64         `db:"avg_rating"`
	ReviewCount   int             `db:"review_count"`
	AISummary     string          `db:"ai_summary"`
	IsPinned      bool            `db:"is_pinned"`
}

// PlaceSummary is a read model for assistant context building: a place with
// its category name resolved.
type PlaceSummary struct {
	Name         string  `db:"name"`
	Address      string  `db:"address"`
	AvgRating    float64 `db:"avg_rating"`
	ReviewCount  int     `db:"review_count"`
	AISummary    string  `db:"ai_summary"`
	CategoryName string  `db:"category_name"`
}

// Review is a user's review of a place. PhotoIDs holds a JSON array of
// Telegram file ids.
type Review struct {
	ID             int64     `db:"id"`
	UserID         int64     `db:"user_id"`
	PlaceID        int64     `db:"place_id"`
	Rating         int       `db:"rating"`
	Text           string    `db:"text"`
	Status         string    `db:"status"`
	IsVerifiedByAI bool      `db:"is_verified_by_ai"`
	PhotoIDs       string    `db:"photo_ids"`
	CreatedAt      time.Time `db:"created_at"`
}

// EncodePhotoIDs marshals Telegram file ids into the JSON form stored in
// reviews.photo_ids. A nil slice encodes as an empty array.
func EncodePhotoIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePhotoIDs is the inverse of EncodePhotoIDs.
func DecodePhotoIDs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GuideCategory groups guides; it is independent from place categories.
type GuideCategory struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Guide is a curated article about a topic in a city.
type Guide struct {
	ID         int64         `db:"id"`
	Topic      string        `db:"topic"`
	CityID     int64         `db:"city_id"`
	CategoryID sql.NullInt64 `db:"category_id"`
	Content    string        `db:"content"`
}

// GuideTopic is a list entry for guide browsing: the guide id, its topic,
// and the name of the city it was written for.
type GuideTopic struct {
	ID       int64  `db:"id"`
	Topic    string `db:"topic"`
	CityName string `db:"city_name"`
}
