package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Backend responses are not consistent about field names, so values are read
// by trying an ordered list of paths until one yields a non-empty string.
var (
	redirectURLPaths = []string{
		"redirectUrl",
		"redirect_url",
		"url",
		"paymentUrl",
		"checkoutUrl",
		"instrumentResponse.redirectInfo.url",
		"data.instrumentResponse.redirectInfo.url",
	}
	transactionIDPaths = []string{"transactionId", "transaction_id", "merchantTransactionId"}
	sessionIDPaths     = []string{"sessionId", "session_id", "merchantTransactionId"}
	statusPaths        = []string{"status", "paymentStatus", "state"}
	amountPaths        = []string{"amount", "data.amount"}
)

func firstString(body map[string]any, paths []string) string {
	for _, p := range paths {
		if v := stringAt(body, p); v != "" {
			return v
		}
	}
	return ""
}

func stringAt(body map[string]any, path string) string {
	var cur any = body
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[key]
		if !ok {
			return ""
		}
	}

	switch v := cur.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}
