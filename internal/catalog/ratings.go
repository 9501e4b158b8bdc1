package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bnema/archectl/internal/addons"
)

var ErrInvalidRating = errors.New("rating must be between 1 and 5")

const (
	MinRating = 1
	MaxRating = 5
)

// RatingSummary is the average of an addon's ratings
type RatingSummary struct {
	Average float64
	Count   int
}

type ratingRow struct {
	AddonID flexString `json:"addon_id"`
	UserID  string     `json:"user_id,omitempty"`
	Rating  int        `json:"rating"`
}

// FetchRatings returns the rating summary of every rated addon, keyed by
// addon id.
func (c *Client) FetchRatings(ctx context.Context) (map[string]RatingSummary, error) {
	query := url.Values{}
	query.Set("select", "addon_id,rating")

	req, err := c.request(ctx, http.MethodGet, "/rest/v1/addon_ratings", query, nil, "")
	if err != nil {
		return nil, err
	}

	var rows []ratingRow
	if _, err := c.do(req, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch ratings: %w", err)
	}
	return summarize(rows), nil
}

func summarize(rows []ratingRow) map[string]RatingSummary {
	sums := make(map[string]int)
	out := make(map[string]RatingSummary)
	for _, row := range rows {
		id := string(row.AddonID)
		if id == "" || row.Rating < MinRating || row.Rating > MaxRating {
			continue
		}
		sums[id] += row.Rating
		s := out[id]
		s.Count++
		out[id] = s
	}
	for id, s := range out {
		s.Average = float64(sums[id]) / float64(s.Count)
		out[id] = s
	}
	return out
}

// UserRating returns the session user's rating of an addon, or 0 when they
// have not rated it.
func (c *Client) UserRating(ctx context.Context, sess *addons.Session, addonID string) (int, error) {
	if !sess.LoggedIn() {
		return 0, ErrUnauthorized
	}

	query := url.Values{}
	query.Set("select", "addon_id,rating")
	query.Set("addon_id", "eq."+addonID)
	query.Set("user_id", "eq."+sess.UserID())

	req, err := c.request(ctx, http.MethodGet, "/rest/v1/addon_ratings", query, nil, sess.AccessToken)
	if err != nil {
		return 0, err
	}

	var rows []ratingRow
	if _, err := c.do(req, &rows); err != nil {
		return 0, fmt.Errorf("failed to fetch rating: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Rating, nil
}

// Rate stores the session user's rating of an addon, replacing an earlier
// one.
func (c *Client) Rate(ctx context.Context, sess *addons.Session, addonID string, stars int) error {
	if stars < MinRating || stars > MaxRating {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, stars)
	}
	if !sess.LoggedIn() {
		return ErrUnauthorized
	}

	query := url.Values{}
	query.Set("on_conflict", "addon_id,user_id")
	body := ratingRow{AddonID: flexString(addonID), UserID: sess.UserID(), Rating: stars}

	req, err := c.request(ctx, http.MethodPost, "/rest/v1/addon_ratings", query, body, sess.AccessToken)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	if _, err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to save rating: %w", err)
	}

	c.log.Debug("Rated addon", "addon", addonID, "stars", stars)
	return nil
}
