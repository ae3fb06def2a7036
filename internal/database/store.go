package database

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/techy/revo/pkg/models"
)

// ErrNotFound is returned in place of gorm.ErrRecordNotFound so callers
// outside this package don't need to import gorm.
var ErrNotFound = errors.New("record not found")

// Store wraps database access for the application.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying gorm DB for handlers that need it.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetConnectedRepo loads one repo connection by (userID, slug).
func (s *Store) GetConnectedRepo(userID, slug string) (*ConnectedRepo, error) {
	var repo ConnectedRepo
	err := s.db.Where("user_id = ? AND slug = ?", userID, slug).First(&repo).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &repo, nil
}

// ListConnectedReposByName finds every connection across all users for a
// given forge repo full-name (owner/name), used by GitLab webhook routing
// where one project may be connected by several users.
func (s *Store) ListConnectedReposByName(name string) ([]ConnectedRepo, error) {
	var repos []ConnectedRepo
	if err := s.db.Where("name = ?", name).Find(&repos).Error; err != nil {
		return nil, err
	}
	return repos, nil
}

// UpsertConnectedRepo creates a repo connection or updates its mutable
// fields (status, analysis/persona/skills, webhook metadata).
func (s *Store) UpsertConnectedRepo(repo *ConnectedRepo) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"analysis_data",
			"persona_data",
			"custom_skills",
			"webhook_hook_id",
			"webhook_secret",
			"updated_at",
		}),
	}).Create(repo).Error
}

// UpdateConnectedRepoStatus advances status; callers are responsible for
// only calling this with forward-moving transitions.
func (s *Store) UpdateConnectedRepoStatus(userID, slug, status string) error {
	return s.db.Model(&ConnectedRepo{}).
		Where("user_id = ? AND slug = ?", userID, slug).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

// DeleteConnectedRepo soft-deletes a repo connection and its review history.
// Reviews are hard-deleted since they carry no independent retention value
// once the connection they belong to is gone.
func (s *Store) DeleteConnectedRepo(userID, slug string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND repo_slug = ?", userID, slug).Delete(&Review{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND slug = ?", userID, slug).Delete(&ConnectedRepo{}).Error
	})
}

// GetUserSettings loads a user's provider tokens and review preferences.
func (s *Store) GetUserSettings(userID string) (*UserSettings, error) {
	var settings UserSettings
	if err := s.db.Where("user_id = ?", userID).First(&settings).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &settings, nil
}

// SaveProviderTokens always writes the latest access token; the refresh
// token is overwritten only when a non-empty one is supplied, so a refresh
// response that omits a new refresh token does not erase the existing one.
func (s *Store) SaveProviderTokens(userID string, provider models.Provider, access, refresh string) error {
	row := UserSettings{UserID: userID}
	updates := map[string]interface{}{"updated_at": time.Now()}
	switch provider {
	case models.ProviderGitHub:
		row.GitHubToken, row.GitHubRefreshToken = access, refresh
		updates["git_hub_token"] = access
		if refresh != "" {
			updates["git_hub_refresh_token"] = refresh
		}
	case models.ProviderGitLab:
		row.GitLabToken, row.GitLabRefreshToken = access, refresh
		updates["git_lab_token"] = access
		if refresh != "" {
			updates["git_lab_refresh_token"] = refresh
		}
	default:
		return errors.New("unknown provider")
	}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&row).Error
}

// CreateReview inserts an append-only review row.
func (s *Store) CreateReview(review *Review) error {
	return s.db.Create(review).Error
}

// ListReviews returns prior reviews for (userID, repoSlug, prNumber),
// newest first, used by the Reviewer's dedup step.
func (s *Store) ListReviews(userID, repoSlug string, prNumber int) ([]Review, error) {
	var reviews []Review
	err := s.db.
		Where("user_id = ? AND repo_slug = ? AND pr_number = ?", userID, repoSlug, prNumber).
		Order("created_at DESC").
		Find(&reviews).Error
	return reviews, err
}

// PriorComments flattens every comment from every prior review into a
// single slice ordered newest-review-first.
func (s *Store) PriorComments(userID, repoSlug string, prNumber int) ([]models.ReviewComment, error) {
	reviews, err := s.ListReviews(userID, repoSlug, prNumber)
	if err != nil {
		return nil, err
	}

	var prior []models.ReviewComment
	for _, r := range reviews {
		var comments []models.ReviewComment
		if r.Comments == "" {
			continue
		}
		if err := json.Unmarshal([]byte(r.Comments), &comments); err != nil {
			continue
		}
		prior = append(prior, comments...)
	}
	return prior, nil
}

// GetSubscription loads a user's plan/counter row.
func (s *Store) GetSubscription(userID string) (*Subscription, error) {
	var sub Subscription
	if err := s.db.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &sub, nil
}

// ResetReviewCount zeroes the monthly counter and bumps the reset
// timestamp to now, used when the 30-day window has elapsed.
func (s *Store) ResetReviewCount(userID string) error {
	return s.db.Model(&Subscription{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"review_count_month":    0,
			"review_count_reset_at": time.Now(),
		}).Error
}

// IncrementReviewCount atomically bumps the monthly counter via the
// backend-side stored procedure installed by Connect.
func (s *Store) IncrementReviewCount(userID string) error {
	return s.db.Exec("SELECT increment_review_count(?)", userID).Error
}

// EncodeText marshals a plain string into its jsonb-safe encoded form, used
// for text columns (PersonaData) that must hold valid JSON.
func EncodeText(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// DecodeText reverses EncodeText. A value that doesn't parse as a JSON
// string is returned unchanged, tolerating rows written before this
// encoding was adopted.
func DecodeText(s string) string {
	var out string
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out
	}
	return s
}
