package engine

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/madiyar/cityguidebot/internal/classifier"
	"github.com/madiyar/cityguidebot/internal/config"
	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/session"
)

type fakeClassifier struct {
	verdict    classifier.Verdict
	verdictErr error
	summary    string
	summaryErr error
	answer     string
	answerErr  error
}

func (f *fakeClassifier) AnalyzeReview(context.Context, string) (classifier.Verdict, error) {
	return f.verdict, f.verdictErr
}

func (f *fakeClassifier) SummarizeReviews(context.Context, []string) (string, error) {
	return f.summary, f.summaryErr
}

func (f *fakeClassifier) GenerateRecommendation(context.Context, string, string, string) (string, error) {
	return f.answer, f.answerErr
}

type testBot struct {
	engine   *Engine
	store    database.Store
	db       *sqlx.DB
	sessions session.Store
	ai       *fakeClassifier
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := database.ApplyMigrations(db.DB, "test"); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	store := database.NewStore(db, slog.Default())
	sessions := session.NewMemoryStore()
	ai := &fakeClassifier{summary: "lovely", answer: "go to the old town"}

	cfg := &config.Config{}
	cfg.Rewards.ReviewBalance = 10
	cfg.Rewards.ReviewReputation = 10
	cfg.Messages.WelcomeBack = "welcome back"
	cfg.Messages.Registered = "registered"
	cfg.Messages.NotRegistered = "please register"
	cfg.Messages.NoCity = "pick a city first"
	cfg.Messages.MainMenu = "main menu"
	cfg.Messages.Help = "help text"
	cfg.Messages.OutOfSearchRequests = "no search requests left"
	cfg.Messages.OutOfAIRequests = "no ai requests left"
	cfg.Messages.ReviewPublished = "review published"
	cfg.Messages.ReviewRejected = "review rejected"
	cfg.Messages.GenericError = "something broke"

	return &testBot{
		engine:   New(store, sessions, ai, cfg, slog.Default()),
		store:    store,
		db:       db,
		sessions: sessions,
		ai:       ai,
	}
}

func (b *testBot) seedCity(t *testing.T, name string) int64 {
	t.Helper()
	res, err := b.db.Exec(`INSERT INTO cities (name, is_active) VALUES (?, 1)`, name)
	if err != nil {
		t.Fatalf("failed to seed city: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func (b *testBot) seedCategory(t *testing.T, name, slug string) int64 {
	t.Helper()
	res, err := b.db.Exec(`INSERT INTO categories (name, slug) VALUES (?, ?)`, name, slug)
	if err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func (b *testBot) seedUser(t *testing.T, telegramID, cityID int64) {
	t.Helper()
	user := &database.User{
		TelegramID:       telegramID,
		Username:         "tester",
		FullName:         "Test User",
		Role:             database.RoleTourist,
		Status:           database.StatusNovice,
		BalanceRequests:  5,
		AIRequestBalance: 10,
	}
	user.CityID.Int64 = cityID
	user.CityID.Valid = true
	if err := b.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func (b *testBot) seedPlace(t *testing.T, cityID, categoryID int64, name string, rating float64, reviews int, pinned bool) int64 {
	t.Helper()
	res, err := b.db.Exec(
		`INSERT INTO places (name, address, city_id, category_id, location, avg_rating, review_count, ai_summary, is_pinned)
		 VALUES (?, '1 Main St', ?, ?, '{}', ?, ?, '', ?)`,
		name, cityID, categoryID, rating, reviews, pinned,
	)
	if err != nil {
		t.Fatalf("failed to seed place: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func (b *testBot) message(text string) Event {
	return Event{UserID: 100, ChatID: 100, Username: "tester", FullName: "Test User", Text: text}
}

func (b *testBot) callback(tok Token) Event {
	return Event{UserID: 100, ChatID: 100, Username: "tester", Token: tok}
}

func requireReplyContains(t *testing.T, replies []Reply, want string) Reply {
	t.Helper()
	if len(replies) == 0 {
		t.Fatalf("expected a reply containing %q, got none", want)
	}
	for _, r := range replies {
		if strings.Contains(r.Text, want) || strings.Contains(r.Alert, want) {
			return r
		}
	}
	t.Fatalf("no reply contains %q; first reply text: %q", want, replies[0].Text)
	return Reply{}
}

func TestRegistrationFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	b.seedCity(t, "Lisbon")

	replies := b.engine.HandleStart(ctx, b.message("/start"))
	requireReplyContains(t, replies, "Pick your city")

	replies = b.engine.HandleMessage(ctx, b.message("Atlantis"))
	requireReplyContains(t, replies, "don't know that city")

	replies = b.engine.HandleMessage(ctx, b.message("Lisbon"))
	requireReplyContains(t, replies, "who you are")

	replies = b.engine.HandleMessage(ctx, b.message("Tourist"))
	requireReplyContains(t, replies, "registered")

	user, err := b.store.GetUser(ctx, 100)
	if err != nil {
		t.Fatalf("user was not created: %v", err)
	}
	if user.BalanceRequests != 5 || user.AIRequestBalance != 10 {
		t.Errorf("starting balances = %d/%d, want 5/10", user.BalanceRequests, user.AIRequestBalance)
	}
	if _, err := b.sessions.Get(ctx, 100); err == nil {
		t.Error("session should be cleared after registration")
	}
}

func TestRegistrationBackClearsCity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	b.seedCity(t, "Lisbon")

	b.engine.HandleStart(ctx, b.message("/start"))
	b.engine.HandleMessage(ctx, b.message("Lisbon"))

	replies := b.engine.HandleMessage(ctx, b.message(ButtonBack))
	requireReplyContains(t, replies, "pick a city")

	sess, err := b.sessions.Get(ctx, 100)
	if err != nil {
		t.Fatalf("session missing: %v", err)
	}
	if sess.State != session.StateChoosingCity {
		t.Errorf("state = %q, want %q", sess.State, session.StateChoosingCity)
	}
	if sess.Registration.CityID != 0 {
		t.Errorf("city choice should be cleared, got %d", sess.Registration.CityID)
	}
}

func TestMenuOverridesAnyState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	b.seedCity(t, "Lisbon")

	b.engine.HandleStart(ctx, b.message("/start"))
	b.engine.HandleMessage(ctx, b.message("Lisbon"))

	replies := b.engine.HandleMessage(ctx, b.message(ButtonMenu))
	requireReplyContains(t, replies, "main menu")

	if _, err := b.sessions.Get(ctx, 100); err == nil {
		t.Error("menu button should clear the session")
	}
}

func TestSearchChargesOncePerSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	catID := b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)
	b.seedPlace(t, cityID, catID, "Tasca", 4.5, 3, false)
	b.seedPlace(t, cityID, catID, "Cantina", 4.0, 2, false)

	b.engine.HandleMessage(ctx, b.message(ButtonSearch))
	replies := b.engine.HandleMessage(ctx, b.message("Food"))
	requireReplyContains(t, replies, "Tasca")

	user, _ := b.store.GetUser(ctx, 100)
	if user.BalanceRequests != 4 {
		t.Errorf("balance after one search = %d, want 4", user.BalanceRequests)
	}

	// Paging through cards is free.
	b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenNavNext}))
	user, _ = b.store.GetUser(ctx, 100)
	if user.BalanceRequests != 4 {
		t.Errorf("balance after paging = %d, want 4", user.BalanceRequests)
	}
}

func TestSearchRefusedAtZeroBalance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	catID := b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)
	b.seedPlace(t, cityID, catID, "Tasca", 4.5, 3, false)

	if _, err := b.db.Exec(`UPDATE users SET balance_requests = 0 WHERE telegram_id = 100`); err != nil {
		t.Fatalf("failed to drain balance: %v", err)
	}

	b.engine.HandleMessage(ctx, b.message(ButtonSearch))
	replies := b.engine.HandleMessage(ctx, b.message("Food"))
	requireReplyContains(t, replies, "no search requests left")

	if _, err := b.sessions.Get(ctx, 100); err == nil {
		t.Error("refused search should clear the session")
	}
}

func TestSearchPaginationBoundaries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	catID := b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)
	b.seedPlace(t, cityID, catID, "Tasca", 4.5, 3, false)
	b.seedPlace(t, cityID, catID, "Cantina", 4.0, 2, false)

	b.engine.HandleMessage(ctx, b.message(ButtonSearch))
	b.engine.HandleMessage(ctx, b.message("Food"))

	replies := b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenNavPrev}))
	requireReplyContains(t, replies, "first card")

	replies = b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenNavNext}))
	card := requireReplyContains(t, replies, "Cantina")
	if !card.Edit {
		t.Error("paging should edit the card in place")
	}

	replies = b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenNavNext}))
	requireReplyContains(t, replies, "last card")
}

func TestSearchNavigationExpiresWithoutCursor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	b.seedUser(t, 100, cityID)

	// A browsing session without its cursor data cannot be paged.
	err := b.sessions.Put(ctx, 100, &session.Session{
		Flow:  session.FlowSearch,
		State: session.StateBrowsingResults,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	replies := b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenNavNext}))
	requireReplyContains(t, replies, "expired")
}

func TestSearchRanksPinnedFirstAndSkipsUnreviewed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	catID := b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)
	b.seedPlace(t, cityID, catID, "Organic Star", 4.9, 12, false)
	b.seedPlace(t, cityID, catID, "Sponsored Diner", 4.0, 1, true)
	b.seedPlace(t, cityID, catID, "Ghost Cafe", 0, 0, false)

	b.engine.HandleMessage(ctx, b.message(ButtonSearch))
	replies := b.engine.HandleMessage(ctx, b.message("Food"))
	requireReplyContains(t, replies, "Sponsored Diner")

	sess, err := b.sessions.Get(ctx, 100)
	if err != nil {
		t.Fatalf("session missing: %v", err)
	}
	if got := len(sess.Search.PlaceIDs); got != 2 {
		t.Errorf("result count = %d, want 2 (unreviewed place excluded)", got)
	}
}

func TestReviewFlowPublishesAndRewards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)

	b.engine.HandleMessage(ctx, b.message(ButtonAddReview))
	b.engine.HandleMessage(ctx, b.message("Tasca do Chico"))   // unknown -> address
	b.engine.HandleMessage(ctx, b.message("Rua do Diario 39")) // address -> category
	b.engine.HandleMessage(ctx, b.message("Food"))             // creates place -> rating

	replies := b.engine.HandleMessage(ctx, b.message("6"))
	requireReplyContains(t, replies, "1 to 5")

	b.engine.HandleMessage(ctx, b.message("5"))
	b.engine.HandleMessage(ctx, b.message("Great fado and petiscos."))

	replies = b.engine.HandleMessage(ctx, b.message(ButtonPhotosDone))
	requireReplyContains(t, replies, "review published")

	user, _ := b.store.GetUser(ctx, 100)
	if user.BalanceRequests != 15 {
		t.Errorf("balance after reward = %d, want 15", user.BalanceRequests)
	}
	if user.ReputationPoints != 10 {
		t.Errorf("reputation after reward = %d, want 10", user.ReputationPoints)
	}

	places, err := b.store.SearchPlacesByName(ctx, cityID, "Tasca", 6)
	if err != nil || len(places) != 1 {
		t.Fatalf("created place not found: %v (%d)", err, len(places))
	}
	if places[0].ReviewCount != 1 || places[0].AvgRating != 5 {
		t.Errorf("place aggregates = %d/%v, want 1/5", places[0].ReviewCount, places[0].AvgRating)
	}
}

func TestReviewRejectedAsSpam(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	catID := b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)
	placeID := b.seedPlace(t, cityID, catID, "Tasca", 4.5, 3, false)
	b.ai.verdict = classifier.Verdict{IsSpam: true}

	b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenReview, ID: placeID}))
	b.engine.HandleMessage(ctx, b.message("3"))
	b.engine.HandleMessage(ctx, b.message("BUY FOLLOWERS NOW"))

	replies := b.engine.HandleMessage(ctx, b.message(ButtonPhotosDone))
	requireReplyContains(t, replies, "review rejected")

	user, _ := b.store.GetUser(ctx, 100)
	if user.BalanceRequests != 5 || user.ReputationPoints != 0 {
		t.Errorf("rejected review must not grant rewards, got %d/%d",
			user.BalanceRequests, user.ReputationPoints)
	}
	place, _ := b.store.GetPlace(ctx, placeID)
	if place.ReviewCount != 3 {
		t.Errorf("rejected review must not touch aggregates, count = %d", place.ReviewCount)
	}
}

func TestReviewPublishesWhenModerationFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	catID := b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)
	placeID := b.seedPlace(t, cityID, catID, "Tasca", 4.0, 1, false)
	b.ai.verdictErr = context.DeadlineExceeded

	b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenReview, ID: placeID}))
	b.engine.HandleMessage(ctx, b.message("4"))
	b.engine.HandleMessage(ctx, b.message("Nice terrace."))

	replies := b.engine.HandleMessage(ctx, b.message(ButtonPhotosDone))
	requireReplyContains(t, replies, "review published")

	user, _ := b.store.GetUser(ctx, 100)
	if user.BalanceRequests != 15 {
		t.Errorf("reward missing after degraded moderation, balance = %d", user.BalanceRequests)
	}
}

func TestReviewShortcutRefusesDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	catID := b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)
	placeID := b.seedPlace(t, cityID, catID, "Tasca", 4.0, 1, false)

	review := &database.Review{UserID: 100, PlaceID: placeID, Rating: 4, Text: "been there"}
	if err := b.store.CreateReview(ctx, review); err != nil {
		t.Fatalf("failed to seed review: %v", err)
	}

	replies := b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenReview, ID: placeID}))
	requireReplyContains(t, replies, "already reviewed")
}

func TestReviewBackFromRatingClearsPlace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	catID := b.seedCategory(t, "Food", "food")
	b.seedUser(t, 100, cityID)
	placeID := b.seedPlace(t, cityID, catID, "Tasca", 4.0, 1, false)

	b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenReview, ID: placeID}))

	replies := b.engine.HandleMessage(ctx, b.message(ButtonBack))
	requireReplyContains(t, replies, "What is the place called")

	sess, err := b.sessions.Get(ctx, 100)
	if err != nil {
		t.Fatalf("session missing: %v", err)
	}
	if sess.Review.PlaceID != 0 || sess.Review.Rating != 0 {
		t.Errorf("place/rating should be cleared, got %d/%d", sess.Review.PlaceID, sess.Review.Rating)
	}
}

func (b *testBot) seedGuide(t *testing.T, cityID int64, category, topic, content string) int64 {
	t.Helper()
	var categoryID int64
	err := b.db.Get(&categoryID, `SELECT id FROM guide_categories WHERE name = ?`, category)
	if err != nil {
		res, err := b.db.Exec(`INSERT INTO guide_categories (name) VALUES (?)`, category)
		if err != nil {
			t.Fatalf("failed to seed guide category: %v", err)
		}
		categoryID, _ = res.LastInsertId()
	}
	res, err := b.db.Exec(
		`INSERT INTO guides (topic, city_id, category_id, content) VALUES (?, ?, ?, ?)`,
		topic, cityID, categoryID, content,
	)
	if err != nil {
		t.Fatalf("failed to seed guide: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestGuidesFlowOpensGuideByNumber(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	b.seedUser(t, 100, cityID)
	b.seedGuide(t, cityID, "Walks", "Alfama at dawn", "Start at the miradouro.")
	b.seedGuide(t, cityID, "Walks", "Belem loop", "Pasteis first, then the tower.")

	replies := b.engine.HandleMessage(ctx, b.message(ButtonGuides))
	requireReplyContains(t, replies, "Walks")

	replies = b.engine.HandleMessage(ctx, b.message("Walks"))
	requireReplyContains(t, replies, "Alfama at dawn")

	replies = b.engine.HandleMessage(ctx, b.message("1"))
	requireReplyContains(t, replies, "Start at the miradouro.")
	// The content view is transient: the topic list follows immediately.
	requireReplyContains(t, replies, "Belem loop")

	sess, err := b.sessions.Get(ctx, 100)
	if err != nil {
		t.Fatalf("session missing: %v", err)
	}
	if sess.State != session.StateViewingTopics {
		t.Errorf("state = %q, want %q", sess.State, session.StateViewingTopics)
	}
}

func TestGuidesFallBackToOtherCities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	lisbonID := b.seedCity(t, "Lisbon")
	portoID := b.seedCity(t, "Porto")
	b.seedUser(t, 100, lisbonID)
	b.seedGuide(t, portoID, "Walks", "Ribeira stroll", "Cross the bridge on the upper deck.")

	b.engine.HandleMessage(ctx, b.message(ButtonGuides))
	replies := b.engine.HandleMessage(ctx, b.message("Walks"))
	// The foreign guide is labeled with its city.
	requireReplyContains(t, replies, "Ribeira stroll (Porto)")
}

func TestAssistantChargesAndAnswers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	b.seedUser(t, 100, cityID)

	replies := b.engine.HandleMessage(ctx, b.message(ButtonAssistant))
	requireReplyContains(t, replies, "10 requests left")

	replies = b.engine.HandleMessage(ctx, b.message("where to eat?"))
	requireReplyContains(t, replies, "go to the old town")
	requireReplyContains(t, replies, "Requests left: 9")
}

func TestAssistantRefusedAtZeroBalance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	b.seedUser(t, 100, cityID)

	if _, err := b.db.Exec(`UPDATE users SET ai_requests_balance = 0 WHERE telegram_id = 100`); err != nil {
		t.Fatalf("failed to drain balance: %v", err)
	}

	b.engine.HandleMessage(ctx, b.message(ButtonAssistant))
	replies := b.engine.HandleMessage(ctx, b.message("where to eat?"))
	requireReplyContains(t, replies, "no ai requests left")

	if _, err := b.sessions.Get(ctx, 100); err == nil {
		t.Error("refused assistant request should clear the session")
	}
}

func TestProfileShowsCardAndChangesCity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	portoID := b.seedCity(t, "Porto")
	b.seedUser(t, 100, cityID)

	replies := b.engine.HandleMessage(ctx, b.message(ButtonProfile))
	requireReplyContains(t, replies, "Lisbon")

	replies = b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenChangeCity}))
	requireReplyContains(t, replies, "new city")

	replies = b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenCity, ID: portoID}))
	requireReplyContains(t, replies, "Porto")

	user, _ := b.store.GetUser(ctx, 100)
	if !user.CityID.Valid || user.CityID.Int64 != portoID {
		t.Errorf("city not updated, got %+v", user.CityID)
	}
}

func TestCityChangeExpiresOutsideProfileFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	cityID := b.seedCity(t, "Lisbon")
	b.seedUser(t, 100, cityID)

	replies := b.engine.HandleCallback(ctx, b.callback(Token{Kind: TokenCity, ID: cityID}))
	requireReplyContains(t, replies, "expired")
}

func TestUnregisteredUserIsTurnedAway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBot(t)
	b.seedCity(t, "Lisbon")

	for _, button := range []string{ButtonSearch, ButtonAddReview, ButtonAssistant} {
		replies := b.engine.HandleMessage(ctx, b.message(button))
		requireReplyContains(t, replies, "please register")
	}
}
