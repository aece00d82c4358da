package backend

import (
	"context"
	"net/http"
)

// CreateComment adds a comment to a list.
func (c *Client) CreateComment(ctx context.Context, listID string, in CommentInput) (Comment, error) {
	if err := requireID("list", listID); err != nil {
		return Comment{}, err
	}
	if err := check(in); err != nil {
		return Comment{}, err
	}
	var out Comment
	err := c.do(ctx, request{method: http.MethodPost, path: []string{"lists", listID, "comments"}, body: in, auth: true}, &out)
	return out, err
}

// UpdateComment edits a comment's text.
func (c *Client) UpdateComment(ctx context.Context, listID, commentID string, in CommentInput) (Comment, error) {
	if err := requireID("list", listID); err != nil {
		return Comment{}, err
	}
	if err := requireID("comment", commentID); err != nil {
		return Comment{}, err
	}
	if err := check(in); err != nil {
		return Comment{}, err
	}
	var out Comment
	err := c.do(ctx, request{method: http.MethodPut, path: []string{"lists", listID, "comments", commentID}, body: in, auth: true}, &out)
	return out, err
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, listID, commentID string) error {
	if err := requireID("list", listID); err != nil {
		return err
	}
	if err := requireID("comment", commentID); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodDelete, path: []string{"lists", listID, "comments", commentID}, auth: true}, nil)
}

// CreateActivity logs an activity on a saved location.
func (c *Client) CreateActivity(ctx context.Context, locationID string, in ActivityInput) (Activity, error) {
	if err := requireID("location", locationID); err != nil {
		return Activity{}, err
	}
	if err := check(in); err != nil {
		return Activity{}, err
	}
	var out Activity
	err := c.do(ctx, request{method: http.MethodPost, path: []string{"locations", locationID, "activities"}, body: in, auth: true}, &out)
	return out, err
}

// UpdateActivity edits an activity.
func (c *Client) UpdateActivity(ctx context.Context, locationID, activityID string, in ActivityInput) (Activity, error) {
	if err := requireID("location", locationID); err != nil {
		return Activity{}, err
	}
	if err := requireID("activity", activityID); err != nil {
		return Activity{}, err
	}
	if err := check(in); err != nil {
		return Activity{}, err
	}
	var out Activity
	err := c.do(ctx, request{method: http.MethodPut, path: []string{"locations", locationID, "activities", activityID}, body: in, auth: true}, &out)
	return out, err
}

// DeleteActivity removes an activity.
func (c *Client) DeleteActivity(ctx context.Context, locationID, activityID string) error {
	if err := requireID("location", locationID); err != nil {
		return err
	}
	if err := requireID("activity", activityID); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodDelete, path: []string{"locations", locationID, "activities", activityID}, auth: true}, nil)
}
