package subscription

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
)

// confirmResponse covers the JSON shapes SNS and proxies return for a
// subscribe URL fetch.
type confirmResponse struct {
	SubscribeResponse struct {
		SubscribeResult struct {
			SubscriptionArn string `json:"SubscriptionArn"`
		} `json:"SubscribeResult"`
	} `json:"SubscribeResponse"`
	ConfirmSubscriptionResponse struct {
		ConfirmSubscriptionResult struct {
			SubscriptionArn string `json:"SubscriptionArn"`
		} `json:"ConfirmSubscriptionResult"`
	} `json:"ConfirmSubscriptionResponse"`
}

// confirmResponseXML is the default SNS query API response.
type confirmResponseXML struct {
	XMLName         xml.Name `xml:"ConfirmSubscriptionResponse"`
	SubscriptionArn string   `xml:"ConfirmSubscriptionResult>SubscriptionArn"`
}

// parseSubscriptionArn extracts the subscription ARN from a confirmation
// response body. It returns "" when none is present.
func parseSubscriptionArn(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '{' {
		var r confirmResponse
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return ""
		}
		if arn := r.SubscribeResponse.SubscribeResult.SubscriptionArn; arn != "" {
			return arn
		}
		return r.ConfirmSubscriptionResponse.ConfirmSubscriptionResult.SubscriptionArn
	}
	var x confirmResponseXML
	if err := xml.Unmarshal(trimmed, &x); err != nil {
		return ""
	}
	return x.SubscriptionArn
}
