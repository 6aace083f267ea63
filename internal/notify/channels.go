package notify

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/domain"
)

// --- Email (AWS SES v2) ---

// EmailChannel delivers notifications by email through AWS SES.
type EmailChannel struct {
	client  *sesv2.Client
	from    string
	subject string
}

// NewEmailChannel creates an SES-backed email channel with static credentials.
func NewEmailChannel(ctx context.Context, region, accessKey, secretKey, from, subject string) (*EmailChannel, error) {
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &EmailChannel{
		client:  sesv2.NewFromConfig(awsCfg),
		from:    from,
		subject: subject,
	}, nil
}

func (e *EmailChannel) Type() domain.Channel { return domain.ChannelEmail }

func (e *EmailChannel) Send(ctx context.Context, recipient, message string) error {
	_, err := e.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(e.from),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(e.subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(message)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// --- SMS (HTTP gateway) ---

// SMSChannel delivers notifications through an HTTP SMS gateway.
type SMSChannel struct {
	gatewayURL string
	apiKey     string
	senderID   string
	client     *http.Client
}

// NewSMSChannel creates an SMS channel against the given gateway.
func NewSMSChannel(gatewayURL, apiKey, senderID string) *SMSChannel {
	return &SMSChannel{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		senderID:   senderID,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SMSChannel) Type() domain.Channel { return domain.ChannelSMS }

func (s *SMSChannel) Send(ctx context.Context, recipient, message string) error {
	payload := map[string]string{
		"to":   recipient,
		"from": s.senderID,
		"body": message,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// --- Chat (incoming webhook) ---

// ChatChannel posts notifications to a Slack-compatible incoming webhook.
// The recipient is the channel name to post into.
type ChatChannel struct {
	webhookURL string
	client     *http.Client
}

// NewChatChannel creates a chat channel against the given webhook URL.
func NewChatChannel(webhookURL string) *ChatChannel {
	return &ChatChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ChatChannel) Type() domain.Channel { return domain.ChannelChat }

func (c *ChatChannel) Send(ctx context.Context, recipient, message string) error {
	payload := map[string]interface{}{
		"text": message,
	}
	if recipient != "" {
		payload["channel"] = recipient
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// --- In-app ---

// InAppChannel stores notifications in the platform's in-app inbox table.
// The recipient is the platform user ID.
type InAppChannel struct {
	db *sql.DB
}

// NewInAppChannel creates an in-app channel writing to the given database.
func NewInAppChannel(db *sql.DB) *InAppChannel {
	return &InAppChannel{db: db}
}

func (i *InAppChannel) Type() domain.Channel { return domain.ChannelInApp }

func (i *InAppChannel) Send(ctx context.Context, recipient, message string) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO in_app_notifications (id, user_id, message, created_at)
		VALUES ($1, $2, $3, NOW())
	`, uuid.New(), recipient, message)
	if err != nil {
		return fmt.Errorf("in-app insert: %w", err)
	}
	return nil
}
