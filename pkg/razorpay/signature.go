package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign computes the checkout signature: hex HMAC-SHA256 of "order_id|payment_id"
// keyed with the account secret.
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a success callback against the account secret.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}
	expected := Sign(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
