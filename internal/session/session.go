// Package session holds per-user conversation state: which flow the user is
// in, the step inside it, and the data collected so far. Two Store
// implementations exist: an in-process map and a Redis-backed store.
package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when the user has no session.
var ErrNotFound = errors.New("session not found")

// Flow identifies a conversation flow.
type Flow string

const (
	FlowRegistration Flow = "registration"
	FlowSearch       Flow = "search"
	FlowReview       Flow = "review"
	FlowGuides       Flow = "guides"
	FlowAssistant    Flow = "assistant"
	FlowProfile      Flow = "profile"
)

// State identifies a step inside a flow. Names may repeat across flows; the
// (Flow, State) pair is what the engine dispatches on.
type State string

const (
	// Registration.
	StateChoosingCity State = "choosing_city"
	StateChoosingRole State = "choosing_role"

	// Search and guides both pick a category first.
	StateChoosingCategory State = "choosing_category"
	StateBrowsingResults  State = "browsing_results"
	StateViewingTopics    State = "viewing_topics"

	// Review authoring.
	StateEnteringPlaceName State = "entering_place_name"
	StateSelectingPlace    State = "selecting_place"
	StateEnteringAddress   State = "entering_address"
	StateRating            State = "rating"
	StateEnteringText      State = "entering_text"
	StateCollectingPhotos  State = "collecting_photos"

	// Assistant.
	StateChatting State = "chatting"
)

// PlaceOption is a place offered on the review flow's selection keyboard.
type PlaceOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CategoryOption is a category offered on a selection keyboard.
type CategoryOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GuideTopicOption is a guide topic offered on the topic list.
type GuideTopicOption struct {
	ID    int64  `json:"id"`
	Topic string `json:"topic"`
}

// RegistrationData carries the registration flow's collected inputs.
type RegistrationData struct {
	CityID int64 `json:"city_id"`
}

// SearchData carries the search flow's city binding and result cursor.
type SearchData struct {
	CityID     int64   `json:"city_id"`
	CategoryID int64   `json:"category_id"`
	PlaceIDs   []int64 `json:"place_ids"`
	Index      int     `json:"index"`
}

// ReviewData carries everything collected while authoring a review.
type ReviewData struct {
	CityID          int64            `json:"city_id"`
	PlaceName       string           `json:"place_name"`
	PlaceID         int64            `json:"place_id"`
	Address         string           `json:"address"`
	PlaceOptions    []PlaceOption    `json:"place_options,omitempty"`
	CategoryOptions []CategoryOption `json:"category_options,omitempty"`
	Rating          int              `json:"rating"`
	Text            string           `json:"text"`
	Photos          []string         `json:"photos,omitempty"`
}

// GuidesData carries the guide browsing context. CityID zero means the user
// has no city bound and all cities are browsed.
type GuidesData struct {
	CityID       int64              `json:"city_id"`
	CityName     string             `json:"city_name"`
	CategoryID   int64              `json:"category_id"`
	CategoryName string             `json:"category_name"`
	Topics       []GuideTopicOption `json:"topics,omitempty"`
}

// AssistantData carries the assistant chat's city binding.
type AssistantData struct {
	CityID   int64  `json:"city_id"`
	CityName string `json:"city_name"`
}

// Session is the per-user conversation record. Only the active flow's data
// bag is non-nil.
type Session struct {
	Flow  Flow  `json:"flow"`
	State State `json:"state"`

	Registration *RegistrationData `json:"registration,omitempty"`
	Search       *SearchData       `json:"search,omitempty"`
	Review       *ReviewData       `json:"review,omitempty"`
	Guides       *GuidesData       `json:"guides,omitempty"`
	Assistant    *AssistantData    `json:"assistant,omitempty"`
}

// Store persists sessions keyed by Telegram user id.
type Store interface {
	// Get loads the user's session. Returns ErrNotFound when absent.
	Get(ctx context.Context, userID int64) (*Session, error)

	// Put stores the user's session, replacing any previous one.
	Put(ctx context.Context, userID int64, s *Session) error

	// Clear removes the user's session. Clearing an absent session is a no-op.
	Clear(ctx context.Context, userID int64) error
}
