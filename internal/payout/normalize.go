package payout

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedCallback means a payout result payload is missing the fields
// needed to correlate it; such payloads are rejected without guessing.
var ErrMalformedCallback = errors.New("malformed payout callback")

// Result is the normalized correlation tuple the correlator consumes.
// Exactly one of Phone or UserID is set, depending on the payload shape.
// Amount is always the absolute disbursed amount.
type Result struct {
	Phone   string
	UserID  string
	Amount  decimal.Decimal
	Success bool
	Receipt string
}

// NormalizeResult detects which of the known gateway payload shapes raw is
// and reduces it to a Result. Unknown shapes fail closed.
func NormalizeResult(raw []byte) (*Result, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, ErrMalformedCallback
	}
	if _, ok := probe["Result"]; ok {
		return normalizeGatewayResult(raw)
	}
	if _, ok := probe["mpesa_response"]; ok {
		return normalizeDirectResponse(raw)
	}
	return nil, ErrMalformedCallback
}

// normalizeGatewayResult handles the async B2C result document:
//
//	{Result:{ResultCode, ResultParameters:{ResultParameter:[{Key,Value},...]}}}
//
// The ResultParameter list is walked generically since the gateway has been
// observed sending both array and single-object forms.
func normalizeGatewayResult(raw []byte) (*Result, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, ErrMalformedCallback
	}
	resultMap, ok := doc["Result"].(map[string]interface{})
	if !ok {
		return nil, ErrMalformedCallback
	}

	res := &Result{}
	code, ok := asDecimal(resultMap["ResultCode"])
	if !ok {
		return nil, ErrMalformedCallback
	}
	res.Success = code.IsZero()
	if v, ok := resultMap["TransactionID"].(string); ok {
		res.Receipt = v
	}

	params := collectResultParameters(resultMap)
	if v, ok := params["ReceiverPartyPublicName"].(string); ok {
		res.Phone = extractPhone(v)
	}
	if amt, ok := asDecimal(params["TransactionAmount"]); ok {
		res.Amount = amt.Abs()
	}
	if v, ok := params["TransactionReceipt"].(string); ok {
		res.Receipt = v
	}

	// a failure result often omits parameters; the phone is still required
	// to correlate, the amount only when we must discriminate
	if res.Phone == "" || res.Amount.IsZero() {
		return nil, ErrMalformedCallback
	}
	return res, nil
}

// normalizeDirectResponse handles the synchronous acknowledgement shape:
//
//	{mpesa_response:{OriginatorConversationID, ResponseCode, ...}, user_id, amount}
//
// Correlation here is by user id plus exact absolute amount.
func normalizeDirectResponse(raw []byte) (*Result, error) {
	var doc struct {
		MpesaResponse map[string]interface{} `json:"mpesa_response"`
		UserID        string                 `json:"user_id"`
		Amount        json.Number            `json:"amount"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, ErrMalformedCallback
	}
	if doc.MpesaResponse == nil || doc.UserID == "" || doc.Amount == "" {
		return nil, ErrMalformedCallback
	}
	amt, err := decimal.NewFromString(doc.Amount.String())
	if err != nil {
		return nil, ErrMalformedCallback
	}

	res := &Result{UserID: doc.UserID, Amount: amt.Abs()}
	if code, ok := asDecimal(doc.MpesaResponse["ResponseCode"]); ok {
		res.Success = code.IsZero()
	}
	if v, ok := doc.MpesaResponse["ConversationID"].(string); ok {
		res.Receipt = v
	}
	return res, nil
}

// collectResultParameters flattens Result.ResultParameters.ResultParameter
// into a key→value map, tolerating both array and object forms.
func collectResultParameters(resultMap map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	rp, ok := resultMap["ResultParameters"].(map[string]interface{})
	if !ok {
		return out
	}
	switch param := rp["ResultParameter"].(type) {
	case []interface{}:
		for _, item := range param {
			kv, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if key, _ := kv["Key"].(string); key != "" {
				out[key] = kv["Value"]
			}
		}
	case map[string]interface{}:
		if key, _ := param["Key"].(string); key != "" {
			out[key] = param["Value"]
		} else {
			for k, v := range param {
				out[k] = v
			}
		}
	}
	return out
}

// extractPhone strips the "tel:" scheme and any trailing display name
// ("tel:2547xx - Jane Doe") from ReceiverPartyPublicName.
func extractPhone(v string) string {
	v = strings.TrimSpace(strings.TrimPrefix(v, "tel:"))
	if i := strings.IndexAny(v, " -"); i > 0 {
		v = v[:i]
	}
	return v
}

// asDecimal coerces the number representations seen in gateway payloads
// (float64, json.Number, numeric string) into a decimal.
func asDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case int:
		return decimal.NewFromInt(int64(n)), true
	}
	return decimal.Zero, false
}
