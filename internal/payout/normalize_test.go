package payout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeResult_GatewayResultShape(t *testing.T) {
	raw := []byte(`{
		"Result": {
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"TransactionID": "LGR019G3J2",
			"ResultParameters": {
				"ResultParameter": [
					{"Key": "TransactionAmount", "Value": 200},
					{"Key": "TransactionReceipt", "Value": "LGR019G3J2"},
					{"Key": "ReceiverPartyPublicName", "Value": "tel:254708374149 - John Doe"}
				]
			}
		}
	}`)

	res, err := NormalizeResult(raw)
	assert.NoError(t, err)
	assert.Equal(t, "254708374149", res.Phone)
	assert.Empty(t, res.UserID)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(200)))
	assert.True(t, res.Success)
	assert.Equal(t, "LGR019G3J2", res.Receipt)
}

func TestNormalizeResult_GatewayFailure(t *testing.T) {
	raw := []byte(`{
		"Result": {
			"ResultCode": 2001,
			"ResultDesc": "The initiator information is invalid.",
			"ResultParameters": {
				"ResultParameter": [
					{"Key": "TransactionAmount", "Value": "150.00"},
					{"Key": "ReceiverPartyPublicName", "Value": "tel:254700000002"}
				]
			}
		}
	}`)

	res, err := NormalizeResult(raw)
	assert.NoError(t, err)
	assert.Equal(t, "254700000002", res.Phone)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(150)))
	assert.False(t, res.Success)
}

func TestNormalizeResult_SingleObjectParameter(t *testing.T) {
	raw := []byte(`{
		"Result": {
			"ResultCode": 0,
			"ResultParameters": {
				"ResultParameter": {
					"TransactionAmount": 75,
					"ReceiverPartyPublicName": "tel:254700000003"
				}
			}
		}
	}`)

	res, err := NormalizeResult(raw)
	assert.NoError(t, err)
	assert.Equal(t, "254700000003", res.Phone)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(75)))
}

func TestNormalizeResult_DirectResponseShape(t *testing.T) {
	raw := []byte(`{
		"mpesa_response": {
			"OriginatorConversationID": "29115-34620561-1",
			"ConversationID": "AG_20230326_0000777",
			"ResponseCode": "0",
			"ResponseDescription": "Accept the service request successfully."
		},
		"user_id": "u42",
		"amount": -150
	}`)

	res, err := NormalizeResult(raw)
	assert.NoError(t, err)
	assert.Empty(t, res.Phone)
	assert.Equal(t, "u42", res.UserID)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(150)))
	assert.True(t, res.Success)
	assert.Equal(t, "AG_20230326_0000777", res.Receipt)
}

func TestNormalizeResult_FailsClosed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"something": "else"}`),
		[]byte(`{"Result": "not an object"}`),
		// gateway result without correlation parameters
		[]byte(`{"Result": {"ResultCode": 0}}`),
		// direct shape missing user_id
		[]byte(`{"mpesa_response": {"ResponseCode": "0"}, "amount": 10}`),
		// direct shape missing amount
		[]byte(`{"mpesa_response": {"ResponseCode": "0"}, "user_id": "u1"}`),
	}
	for i, raw := range cases {
		_, err := NormalizeResult(raw)
		assert.ErrorIs(t, err, ErrMalformedCallback, "case %d", i)
	}
}
