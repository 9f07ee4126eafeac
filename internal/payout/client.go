package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/greenloop/recycle-wallet/internal/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client calls the mobile-money B2C disbursement gateway. The call is made
// after the pending debit has committed; a transport failure here leaves
// the ledger transaction pending until the reconciliation sweep refunds it.
type Client struct {
	httpClient *http.Client
	cfg        config.PayoutConfig
	log        *zap.SugaredLogger
}

func NewClient(cfg config.PayoutConfig, log *zap.SugaredLogger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		cfg:        cfg,
		log:        log,
	}
}

type b2cRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   string `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
}

// B2CResponse is the gateway's synchronous acknowledgement.
type B2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// SendB2C submits a disbursement to phone for amount.
func (c *Client) SendB2C(ctx context.Context, phone string, amount decimal.Decimal, remarks string) (*B2CResponse, error) {
	req := b2cRequest{
		OriginatorConversationID: uuid.NewString(),
		InitiatorName:            c.cfg.InitiatorName,
		SecurityCredential:       c.cfg.SecurityCredential,
		CommandID:                "BusinessPayment",
		Amount:                   amount.String(),
		PartyA:                   c.cfg.ShortCode,
		PartyB:                   phone,
		Remarks:                  remarks,
		QueueTimeOutURL:          c.cfg.QueueTimeoutURL,
		ResultURL:                c.cfg.ResultURL,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/mpesa/b2c/v1/paymentrequest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("b2c request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("b2c request: gateway status %d", resp.StatusCode)
	}
	var out B2CResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("b2c response: %w", err)
	}
	c.log.Infow("b2c submitted",
		"conversation_id", out.ConversationID,
		"originator_conversation_id", req.OriginatorConversationID,
		"response_code", out.ResponseCode)
	return &out, nil
}
