package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type createHookRequest struct {
	URL                   string `json:"url"`
	Token                 string `json:"token"`
	MergeRequestsEvents   bool   `json:"merge_requests_events"`
	NoteEvents            bool   `json:"note_events"`
	PushEvents            bool   `json:"push_events"`
	EnableSSLVerification bool   `json:"enable_ssl_verification"`
}

type createHookResponse struct {
	ID int64 `json:"id"`
}

// CreateWebhook registers a merge-request hook on a project, returning its
// id for later deletion. Push events are intentionally left off; techy only
// cares about merge request and note lifecycle.
func (c *Client) CreateWebhook(ctx context.Context, projectPath, token, webhookURL, secret string) (int64, error) {
	body := createHookRequest{
		URL:                   webhookURL,
		Token:                 secret,
		MergeRequestsEvents:   true,
		NoteEvents:            true,
		PushEvents:            false,
		EnableSSLVerification: true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal hook body: %w", err)
	}

	path := fmt.Sprintf("/projects/%s/hooks", encodeProjectPath(projectPath))
	resp, err := c.do(ctx, http.MethodPost, path, token, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create webhook for %s: %w", projectPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("create webhook for %s: status %d", projectPath, resp.StatusCode)
	}

	var created createHookResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("decode created webhook: %w", err)
	}
	return created.ID, nil
}

// DeleteWebhook removes a previously created hook. 204 and 404 both count
// as success — the hook is gone either way.
func (c *Client) DeleteWebhook(ctx context.Context, projectPath string, hookID int64, token string) error {
	path := fmt.Sprintf("/projects/%s/hooks/%d", encodeProjectPath(projectPath), hookID)
	resp, err := c.do(ctx, http.MethodDelete, path, token, nil)
	if err != nil {
		return fmt.Errorf("delete webhook %d for %s: %w", hookID, projectPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete webhook %d for %s: status %d", hookID, projectPath, resp.StatusCode)
	}
	return nil
}

type addMemberRequest struct {
	UserID      int64 `json:"user_id"`
	AccessLevel int   `json:"access_level"`
}

// InviteBot adds the bot user as a project member at the given access
// level (default Developer=30). A 409 (already a member) is success.
func (c *Client) InviteBot(ctx context.Context, projectPath, userToken string, botUserID int64, accessLevel int) error {
	if accessLevel == 0 {
		accessLevel = 30
	}
	body := addMemberRequest{UserID: botUserID, AccessLevel: accessLevel}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal member body: %w", err)
	}

	path := fmt.Sprintf("/projects/%s/members", encodeProjectPath(projectPath))
	resp, err := c.do(ctx, http.MethodPost, path, userToken, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("invite bot to %s: %w", projectPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("invite bot to %s: status %d", projectPath, resp.StatusCode)
	}
	return nil
}
