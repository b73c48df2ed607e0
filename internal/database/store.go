package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Sentinel errors returned by Store methods. Callers check them with errors.Is.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrReviewNotPending is returned when a review publication or rejection
	// targets a review that is no longer pending. It makes both operations
	// idempotent: a second call applies nothing.
	ErrReviewNotPending = errors.New("review is not pending")

	// ErrInsufficientBalance is returned by conditional balance decrements
	// when the user's counter is already at zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	// GetUser retrieves a user by Telegram ID. Returns ErrNotFound if absent.
	GetUser(ctx context.Context, telegramID int64) (*User, error)

	// CreateUser inserts a new user with default balances.
	CreateUser(ctx context.Context, user *User) error

	// UpdateUserCity moves a user to another active city.
	UpdateUserCity(ctx context.Context, telegramID, cityID int64) error

	// DecrementSearchBalance atomically charges one search request.
	// Returns ErrInsufficientBalance when the balance is already zero.
	DecrementSearchBalance(ctx context.Context, telegramID int64) error

	// DecrementAIBalance atomically charges one AI request and returns the
	// remaining balance. Returns ErrInsufficientBalance at zero.
	DecrementAIBalance(ctx context.Context, telegramID int64) (int, error)

	// ListActiveCities returns active cities ordered by name.
	ListActiveCities(ctx context.Context) ([]City, error)

	// GetCityByID retrieves a city by id. Returns ErrNotFound if absent.
	GetCityByID(ctx context.Context, id int64) (*City, error)

	// GetActiveCityByName retrieves an active city by case-insensitive name.
	GetActiveCityByName(ctx context.Context, name string) (*City, error)

	// ListCategories returns all place categories ordered by name.
	ListCategories(ctx context.Context) ([]Category, error)

	// ListCategoriesForCity returns categories that have at least one place
	// in the given city, ordered by name.
	ListCategoriesForCity(ctx context.Context, cityID int64) ([]Category, error)

	// FindCategoryByName retrieves a category by case-insensitive name.
	FindCategoryByName(ctx context.Context, name string) (*Category, error)

	// GetPlace retrieves a place by id. Returns ErrNotFound if absent.
	GetPlace(ctx context.Context, id int64) (*Place, error)

	// CreatePlace inserts a new place with zero aggregates.
	CreatePlace(ctx context.Context, place *Place) error

	// SearchPlacesByName finds places in a city whose name contains the
	// query (case-insensitive), ordered by name, capped at limit.
	SearchPlacesByName(ctx context.Context, cityID int64, query string, limit int) ([]Place, error)

	// ListPlacesByCategory returns all places of a category in a city,
	// unordered. Ranking is applied by the caller.
	ListPlacesByCategory(ctx context.Context, cityID, categoryID int64) ([]Place, error)

	// ListTopRatedPlaces returns reviewed places of a city with category
	// names resolved, best-rated first, capped at limit.
	ListTopRatedPlaces(ctx context.Context, cityID int64, limit int) ([]PlaceSummary, error)

	// UpdatePlaceSummary overwrites a place's AI summary.
	UpdatePlaceSummary(ctx context.Context, placeID int64, summary string) error

	// ListPlaceIDs returns the ids of every place.
	ListPlaceIDs(ctx context.Context) ([]int64, error)

	// CreateReview inserts a new review in pending status.
	CreateReview(ctx context.Context, review *Review) error

	// UserHasReview reports whether the user already reviewed the place.
	UserHasReview(ctx context.Context, userID, placeID int64) (bool, error)

	// CountUserReviews returns the number of reviews the user has written.
	CountUserReviews(ctx context.Context, userID int64) (int, error)

	// PublishReview publishes a pending review in one transaction: it
	// updates the place aggregates, stores a non-empty verdict summary,
	// flips the review status, and credits the author's rewards.
	PublishReview(ctx context.Context, reviewID int64, summary string, rewardBalance, rewardReputation int) error

	// RejectReview flips a pending review to rejected with no other writes.
	RejectReview(ctx context.Context, reviewID int64) error

	// ListRecentReviewTexts returns the texts of the most recent published
	// reviews of a place, newest first, capped at limit.
	ListRecentReviewTexts(ctx context.Context, placeID int64, limit int) ([]string, error)

	// ListRecentPlacePhotos returns up to limit Telegram file ids from the
	// newest published reviews of a place.
	ListRecentPlacePhotos(ctx context.Context, placeID int64, limit int) ([]string, error)

	// ListGuideCategories returns guide categories that have guides in the
	// given city, falling back to all categories with guides when the city
	// has none or cityID is zero.
	ListGuideCategories(ctx context.Context, cityID int64) ([]GuideCategory, error)

	// FindGuideCategoryByName retrieves a guide category by case-insensitive name.
	FindGuideCategoryByName(ctx context.Context, name string) (*GuideCategory, error)

	// ListGuideTopics returns guide topics of a category for the given city,
	// falling back to all cities (ordered by city name, then topic) when the
	// city has none or cityID is zero.
	ListGuideTopics(ctx context.Context, cityID, categoryID int64) ([]GuideTopic, error)

	// GetGuide retrieves a guide by id. Returns ErrNotFound if absent.
	GetGuide(ctx context.Context, id int64) (*Guide, error)

	// ListGuidesForCity returns up to limit guides of a city.
	ListGuidesForCity(ctx context.Context, cityID int64, limit int) ([]Guide, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
// VACUUM must run outside a transaction in SQLite.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

// --- Users ---

func (s *sqlxStore) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	if telegramID == 0 {
		return nil, fmt.Errorf("telegram_id cannot be zero")
	}

	var user User
	query := `SELECT telegram_id, username, full_name, city_id, role, status,
	                 balance_requests, ai_requests_balance, reputation_points,
	                 created_at, updated_at
	          FROM users WHERE telegram_id = ?`

	err := s.db.GetContext(ctx, &user, query, telegramID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user", "user_id", telegramID, "error", err)
		return nil, fmt.Errorf("failed to get user %d: %w", telegramID, err)
	}
	return &user, nil
}

func (s *sqlxStore) CreateUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("cannot create nil user")
	}
	if user.TelegramID == 0 {
		return fmt.Errorf("user must have a non-zero telegram_id")
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
        INSERT INTO users (telegram_id, username, full_name, city_id, role, status,
                           balance_requests, ai_requests_balance, reputation_points,
                           created_at, updated_at)
        VALUES (:telegram_id, :username, :full_name, :city_id, :role, :status,
                :balance_requests, :ai_requests_balance, :reputation_points,
                :created_at, :updated_at);
    `

	_, err := s.db.NamedExecContext(ctx, query, user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating user", "user_id", user.TelegramID, "error", err)
		return fmt.Errorf("failed to create user %d: %w", user.TelegramID, err)
	}

	s.logger.InfoContext(ctx, "User created", "user_id", user.TelegramID, "role", user.Role)
	return nil
}

func (s *sqlxStore) UpdateUserCity(ctx context.Context, telegramID, cityID int64) error {
	query := `UPDATE users SET city_id = ?, updated_at = ? WHERE telegram_id = ?`
	result, err := s.db.ExecContext(ctx, query, cityID, time.Now().UTC(), telegramID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating user city", "user_id", telegramID, "city_id", cityID, "error", err)
		return fmt.Errorf("failed to update city for user %d: %w", telegramID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}

	s.logger.InfoContext(ctx, "User city updated", "user_id", telegramID, "city_id", cityID)
	return nil
}

func (s *sqlxStore) DecrementSearchBalance(ctx context.Context, telegramID int64) error {
	query := `UPDATE users
	          SET balance_requests = balance_requests - 1, updated_at = ?
	          WHERE telegram_id = ? AND balance_requests > 0`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), telegramID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error decrementing search balance", "user_id", telegramID, "error", err)
		return fmt.Errorf("failed to decrement search balance for user %d: %w", telegramID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (s *sqlxStore) DecrementAIBalance(ctx context.Context, telegramID int64) (int, error) {
	query := `UPDATE users
	          SET ai_requests_balance = ai_requests_balance - 1, updated_at = ?
	          WHERE telegram_id = ? AND ai_requests_balance > 0`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), telegramID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error decrementing AI balance", "user_id", telegramID, "error", err)
		return 0, fmt.Errorf("failed to decrement AI balance for user %d: %w", telegramID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return 0, ErrInsufficientBalance
	}

	var remaining int
	err = s.db.GetContext(ctx, &remaining,
		`SELECT ai_requests_balance FROM users WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return 0, fmt.Errorf("failed to read remaining AI balance for user %d: %w", telegramID, err)
	}
	return remaining, nil
}

// --- Cities ---

func (s *sqlxStore) ListActiveCities(ctx context.Context) ([]City, error) {
	var cities []City
	query := `SELECT id, name, is_active FROM cities WHERE is_active = 1 ORDER BY name`
	if err := s.db.SelectContext(ctx, &cities, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing active cities", "error", err)
		return nil, fmt.Errorf("failed to list active cities: %w", err)
	}
	return cities, nil
}

func (s *sqlxStore) GetCityByID(ctx context.Context, id int64) (*City, error) {
	var city City
	err := s.db.GetContext(ctx, &city, `SELECT id, name, is_active FROM cities WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting city", "city_id", id, "error", err)
		return nil, fmt.Errorf("failed to get city %d: %w", id, err)
	}
	return &city, nil
}

func (s *sqlxStore) GetActiveCityByName(ctx context.Context, name string) (*City, error) {
	var city City
	query := `SELECT id, name, is_active FROM cities
	          WHERE is_active = 1 AND name = ? COLLATE NOCASE`
	err := s.db.GetContext(ctx, &city, query, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting city by name", "name", name, "error", err)
		return nil, fmt.Errorf("failed to get city %q: %w", name, err)
	}
	return &city, nil
}

// --- Categories ---

func (s *sqlxStore) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	query := `SELECT id, name, slug FROM categories ORDER BY name`
	if err := s.db.SelectContext(ctx, &categories, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing categories", "error", err)
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *sqlxStore) ListCategoriesForCity(ctx context.Context, cityID int64) ([]Category, error) {
	var categories []Category
	query := `SELECT DISTINCT c.id, c.name, c.slug
	          FROM categories c
	          JOIN places p ON p.category_id = c.id
	          WHERE p.city_id = ?
	          ORDER BY c.name`
	if err := s.db.SelectContext(ctx, &categories, query, cityID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing categories for city", "city_id", cityID, "error", err)
		return nil, fmt.Errorf("failed to list categories for city %d: %w", cityID, err)
	}
	return categories, nil
}

func (s *sqlxStore) FindCategoryByName(ctx context.Context, name string) (*Category, error) {
	var category Category
	query := `SELECT id, name, slug FROM categories WHERE name = ? COLLATE NOCASE`
	err := s.db.GetContext(ctx, &category, query, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		s.logger.ErrorContext(ctx, "Error finding category", "name", name, "error", err)
		return nil, fmt.Errorf("failed to find category %q: %w", name, err)
	}
	return &category, nil
}

// --- Places ---

func (s *sqlxStore) GetPlace(ctx context.Context, id int64) (*Place, error) {
	var place Place
	query := `SELECT id, name, address, city_id, category_id, google_place_id,
	                 location, avg_rating, review_count, ai_summary, is_pinned
	          FROM places WHERE id = ?`
	err := s.db.GetContext(ctx, &place, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting place", "place_id", id, "error", err)
		return nil, fmt.Errorf("failed to get place %d: %w", id, err)
	}
	return &place, nil
}

func (s *sqlxStore) CreatePlace(ctx context.Context, place *Place) error {
	if place == nil {
		return fmt.Errorf("cannot create nil place")
	}
	if place.Name == "" {
		return fmt.Errorf("place must have a non-empty name")
	}
	if place.Location == "" {
		place.Location = "{}"
	}

	query := `
        INSERT INTO places (name, address, city_id, category_id, google_place_id,
                            location, avg_rating, review_count, ai_summary, is_pinned)
        VALUES (:name, :address, :city_id, :category_id, :google_place_id,
                :location, :avg_rating, :review_count, :ai_summary, :is_pinned);
    `
	result, err := s.db.NamedExecContext(ctx, query, place)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating place", "name", place.Name, "error", err)
		return fmt.Errorf("failed to create place %q: %w", place.Name, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		place.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after creating place",
			"name", place.Name, "error", err)
	}

	s.logger.InfoContext(ctx, "Place created", "place_id", place.ID, "name", place.Name)
	return nil
}

func (s *sqlxStore) SearchPlacesByName(ctx context.Context, cityID int64, query string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 6
	}

	var places []Place
	sqlQuery := `SELECT id, name, address, city_id, category_id, google_place_id,
	                    location, avg_rating, review_count, ai_summary, is_pinned
	             FROM places
	             WHERE city_id = ? AND name LIKE '%' || ? || '%' COLLATE NOCASE
	             ORDER BY name
	             LIMIT ?`
	if err := s.db.SelectContext(ctx, &places, sqlQuery, cityID, query, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error searching places by name", "city_id", cityID, "query", query, "error", err)
		return nil, fmt.Errorf("failed to search places in city %d: %w", cityID, err)
	}
	return places, nil
}

func (s *sqlxStore) ListPlacesByCategory(ctx context.Context, cityID, categoryID int64) ([]Place, error) {
	var places []Place
	query := `SELECT id, name, address, city_id, category_id, google_place_id,
	                 location, avg_rating, review_count, ai_summary, is_pinned
	          FROM places
	          WHERE city_id = ? AND category_id = ?`
	if err := s.db.SelectContext(ctx, &places, query, cityID, categoryID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing places by category",
			"city_id", cityID, "category_id", categoryID, "error", err)
		return nil, fmt.Errorf("failed to list places for city %d category %d: %w", cityID, categoryID, err)
	}
	return places, nil
}

func (s *sqlxStore) ListTopRatedPlaces(ctx context.Context, cityID int64, limit int) ([]PlaceSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	var places []PlaceSummary
	query := `SELECT p.name, p.address, p.avg_rating, p.review_count, p.ai_summary,
	                 COALESCE(c.name, '') AS category_name
	          FROM places p
	          LEFT JOIN categories c ON c.id = p.category_id
	          WHERE p.city_id = ? AND p.review_count > 0
	          ORDER BY p.avg_rating DESC, p.review_count DESC
	          LIMIT ?`
	if err := s.db.SelectContext(ctx, &places, query, cityID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing top rated places", "city_id", cityID, "error", err)
		return nil, fmt.Errorf("failed to list top rated places for city %d: %w", cityID, err)
	}
	return places, nil
}

func (s *sqlxStore) UpdatePlaceSummary(ctx context.Context, placeID int64, summary string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE places SET ai_summary = ? WHERE id = ?`, summary, placeID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating place summary", "place_id", placeID, "error", err)
		return fmt.Errorf("failed to update summary for place %d: %w", placeID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlxStore) ListPlaceIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM places ORDER BY id`); err != nil {
		s.logger.ErrorContext(ctx, "Error listing place ids", "error", err)
		return nil, fmt.Errorf("failed to list place ids: %w", err)
	}
	return ids, nil
}

// --- Reviews ---

func (s *sqlxStore) CreateReview(ctx context.Context, review *Review) error {
	if review == nil {
		return fmt.Errorf("cannot create nil review")
	}
	if review.Rating < 1 || review.Rating > 5 {
		return fmt.Errorf("review rating must be between 1 and 5, got %d", review.Rating)
	}
	if review.Text == "" {
		return fmt.Errorf("review must have non-empty text")
	}

	if review.Status == "" {
		review.Status = ReviewStatusPending
	}
	if review.PhotoIDs == "" {
		review.PhotoIDs = "[]"
	}
	review.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO reviews (user_id, place_id, rating, text, status,
                             is_verified_by_ai, photo_ids, created_at)
        VALUES (:user_id, :place_id, :rating, :text, :status,
                :is_verified_by_ai, :photo_ids, :created_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, review)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating review",
			"user_id", review.UserID, "place_id", review.PlaceID, "error", err)
		return fmt.Errorf("failed to create review (user %d, place %d): %w", review.UserID, review.PlaceID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		review.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after creating review",
			"user_id", review.UserID, "place_id", review.PlaceID, "error", err)
	}

	s.logger.DebugContext(ctx, "Review created",
		"review_id", review.ID, "user_id", review.UserID, "place_id", review.PlaceID)
	return nil
}

func (s *sqlxStore) UserHasReview(ctx context.Context, userID, placeID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM reviews WHERE user_id = ? AND place_id = ?`
	if err := s.db.GetContext(ctx, &count, query, userID, placeID); err != nil {
		s.logger.ErrorContext(ctx, "Error checking existing review",
			"user_id", userID, "place_id", placeID, "error", err)
		return false, fmt.Errorf("failed to check review existence (user %d, place %d): %w", userID, placeID, err)
	}
	return count > 0, nil
}

func (s *sqlxStore) CountUserReviews(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(1) FROM reviews WHERE user_id = ?`, userID); err != nil {
		s.logger.ErrorContext(ctx, "Error counting user reviews", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to count reviews for user %d: %w", userID, err)
	}
	return count, nil
}

// PublishReview runs the whole publication in one transaction. The
// status-guarded UPDATE is the idempotence gate: when the review is no longer
// pending, zero rows are affected and nothing else is applied.
func (s *sqlxStore) PublishReview(ctx context.Context, reviewID int64, summary string, rewardBalance, rewardReputation int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for publishing review",
			"review_id", reviewID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	var review Review
	err = tx.GetContext(ctx, &review,
		`SELECT id, user_id, place_id, rating, status FROM reviews WHERE id = ?`, reviewID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to load review %d: %w", reviewID, err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE reviews SET status = ?, is_verified_by_ai = 1 WHERE id = ? AND status = ?`,
		ReviewStatusPublished, reviewID, ReviewStatusPending)
	if err != nil {
		return fmt.Errorf("failed to flip review %d status: %w", reviewID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrReviewNotPending
	}

	var place Place
	err = tx.GetContext(ctx, &place,
		`SELECT id, avg_rating, review_count, ai_summary FROM places WHERE id = ?`, review.PlaceID)
	if err != nil {
		return fmt.Errorf("failed to load place %d: %w", review.PlaceID, err)
	}

	totalScore := place.AvgRating * float64(place.ReviewCount)
	newCount := place.ReviewCount + 1
	newAvg := (totalScore + float64(review.Rating)) / float64(newCount)

	newSummary := place.AISummary
	if summary != "" {
		newSummary = summary
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE places SET avg_rating = ?, review_count = ?, ai_summary = ? WHERE id = ?`,
		newAvg, newCount, newSummary, place.ID)
	if err != nil {
		return fmt.Errorf("failed to update aggregates for place %d: %w", place.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users
		 SET balance_requests = balance_requests + ?,
		     reputation_points = reputation_points + ?,
		     updated_at = ?
		 WHERE telegram_id = ?`,
		rewardBalance, rewardReputation, time.Now().UTC(), review.UserID)
	if err != nil {
		return fmt.Errorf("failed to credit rewards to user %d: %w", review.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit review publication",
			"review_id", reviewID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Review published",
		"review_id", reviewID, "place_id", place.ID, "user_id", review.UserID,
		"new_avg_rating", newAvg, "new_review_count", newCount)
	return nil
}

func (s *sqlxStore) RejectReview(ctx context.Context, reviewID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET status = ? WHERE id = ? AND status = ?`,
		ReviewStatusRejected, reviewID, ReviewStatusPending)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error rejecting review", "review_id", reviewID, "error", err)
		return fmt.Errorf("failed to reject review %d: %w", reviewID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrReviewNotPending
	}

	s.logger.InfoContext(ctx, "Review rejected", "review_id", reviewID)
	return nil
}

func (s *sqlxStore) ListRecentReviewTexts(ctx context.Context, placeID int64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	var texts []string
	query := `SELECT text FROM reviews
	          WHERE place_id = ? AND status = ?
	          ORDER BY id DESC
	          LIMIT ?`
	if err := s.db.SelectContext(ctx, &texts, query, placeID, ReviewStatusPublished, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing recent review texts", "place_id", placeID, "error", err)
		return nil, fmt.Errorf("failed to list review texts for place %d: %w", placeID, err)
	}
	return texts, nil
}

func (s *sqlxStore) ListRecentPlacePhotos(ctx context.Context, placeID int64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}

	var batches []string
	query := `SELECT photo_ids FROM reviews
	          WHERE place_id = ? AND status = ? AND photo_ids != '[]'
	          ORDER BY id DESC`
	if err := s.db.SelectContext(ctx, &batches, query, placeID, ReviewStatusPublished); err != nil {
		s.logger.ErrorContext(ctx, "Error listing place photos", "place_id", placeID, "error", err)
		return nil, fmt.Errorf("failed to list photos for place %d: %w", placeID, err)
	}

	var photos []string
	for _, raw := range batches {
		ids, err := DecodePhotoIDs(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping undecodable photo batch", "place_id", placeID, "error", err)
			continue
		}
		photos = append(photos, ids...)
		if len(photos) >= limit {
			break
		}
	}
	if len(photos) > limit {
		photos = photos[:limit]
	}
	return photos, nil
}

// --- Guides ---

func (s *sqlxStore) ListGuideCategories(ctx context.Context, cityID int64) ([]GuideCategory, error) {
	var categories []GuideCategory

	if cityID != 0 {
		query := `SELECT DISTINCT gc.id, gc.name
		          FROM guide_categories gc
		          JOIN guides g ON g.category_id = gc.id
		          WHERE g.city_id = ?
		          ORDER BY gc.name`
		if err := s.db.SelectContext(ctx, &categories, query, cityID); err != nil {
			s.logger.ErrorContext(ctx, "Error listing guide categories for city", "city_id", cityID, "error", err)
			return nil, fmt.Errorf("failed to list guide categories for city %d: %w", cityID, err)
		}
		if len(categories) > 0 {
			return categories, nil
		}
	}

	query := `SELECT DISTINCT gc.id, gc.name
	          FROM guide_categories gc
	          JOIN guides g ON g.category_id = gc.id
	          ORDER BY gc.name`
	if err := s.db.SelectContext(ctx, &categories, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing guide categories", "error", err)
		return nil, fmt.Errorf("failed to list guide categories: %w", err)
	}
	return categories, nil
}

func (s *sqlxStore) FindGuideCategoryByName(ctx context.Context, name string) (*GuideCategory, error) {
	var category GuideCategory
	query := `SELECT id, name FROM guide_categories WHERE name = ? COLLATE NOCASE`
	err := s.db.GetContext(ctx, &category, query, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		s.logger.ErrorContext(ctx, "Error finding guide category", "name", name, "error", err)
		return nil, fmt.Errorf("failed to find guide category %q: %w", name, err)
	}
	return &category, nil
}

func (s *sqlxStore) ListGuideTopics(ctx context.Context, cityID, categoryID int64) ([]GuideTopic, error) {
	var topics []GuideTopic

	if cityID != 0 {
		query := `SELECT g.id, g.topic, c.name AS city_name
		          FROM guides g
		          JOIN cities c ON c.id = g.city_id
		          WHERE g.category_id = ? AND g.city_id = ?
		          ORDER BY g.topic`
		if err := s.db.SelectContext(ctx, &topics, query, categoryID, cityID); err != nil {
			s.logger.ErrorContext(ctx, "Error listing guide topics for city",
				"city_id", cityID, "category_id", categoryID, "error", err)
			return nil, fmt.Errorf("failed to list guide topics for city %d: %w", cityID, err)
		}
		if len(topics) > 0 {
			return topics, nil
		}
	}

	query := `SELECT g.id, g.topic, c.name AS city_name
	          FROM guides g
	          JOIN cities c ON c.id = g.city_id
	          WHERE g.category_id = ?
	          ORDER BY c.name, g.topic`
	if err := s.db.SelectContext(ctx, &topics, query, categoryID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing guide topics", "category_id", categoryID, "error", err)
		return nil, fmt.Errorf("failed to list guide topics for category %d: %w", categoryID, err)
	}
	return topics, nil
}

func (s *sqlxStore) GetGuide(ctx context.Context, id int64) (*Guide, error) {
	var guide Guide
	query := `SELECT id, topic, city_id, category_id, content FROM guides WHERE id = ?`
	err := s.db.GetContext(ctx, &guide, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting guide", "guide_id", id, "error", err)
		return nil, fmt.Errorf("failed to get guide %d: %w", id, err)
	}
	return &guide, nil
}

func (s *sqlxStore) ListGuidesForCity(ctx context.Context, cityID int64, limit int) ([]Guide, error) {
	if limit <= 0 {
		limit = 20
	}

	var guides []Guide
	query := `SELECT id, topic, city_id, category_id, content
	          FROM guides WHERE city_id = ? ORDER BY topic LIMIT ?`
	if err := s.db.SelectContext(ctx, &guides, query, cityID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing guides for city", "city_id", cityID, "error", err)
		return nil, fmt.Errorf("failed to list guides for city %d: %w", cityID, err)
	}
	return guides, nil
}
