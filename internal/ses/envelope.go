package ses

// SNS envelope types.
const (
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeNotification             = "Notification"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Envelope is the SNS HTTP(S) delivery wrapper.
type Envelope struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
	Token            string `json:"Token,omitempty"`
	SignatureVersion string `json:"SignatureVersion,omitempty"`
	Signature        string `json:"Signature,omitempty"`
	SigningCertURL   string `json:"SigningCertURL,omitempty"`
}

// Message is the SES notification carried in Envelope.Message. Event
// publishing through configuration sets uses eventType instead of
// notificationType; both are accepted.
type Message struct {
	NotificationType string     `json:"notificationType"`
	EventType        string     `json:"eventType,omitempty"`
	Mail             Mail       `json:"mail"`
	Bounce           *Bounce    `json:"bounce,omitempty"`
	Complaint        *Complaint `json:"complaint,omitempty"`
	Delivery         *Delivery  `json:"delivery,omitempty"`
}

// Kind returns notificationType, falling back to eventType.
func (m Message) Kind() string {
	if m.NotificationType != "" {
		return m.NotificationType
	}
	return m.EventType
}

// Mail describes the original message SES sent.
type Mail struct {
	Timestamp        string        `json:"timestamp"`
	MessageID        string        `json:"messageId"`
	Source           string        `json:"source"`
	SourceArn        string        `json:"sourceArn,omitempty"`
	SendingAccountID string        `json:"sendingAccountId,omitempty"`
	Destination      []string      `json:"destination"`
	HeadersTruncated bool          `json:"headersTruncated,omitempty"`
	CommonHeaders    CommonHeaders `json:"commonHeaders"`
}

// CommonHeaders is the parsed subset of the original headers.
type CommonHeaders struct {
	From      []string `json:"from,omitempty"`
	To        []string `json:"to,omitempty"`
	MessageID string   `json:"messageId,omitempty"`
	Subject   string   `json:"subject,omitempty"`
}

// Bounce is the bounce object of a Bounce notification.
type Bounce struct {
	BounceType        string             `json:"bounceType"`
	BounceSubType     string             `json:"bounceSubType"`
	BouncedRecipients []BouncedRecipient `json:"bouncedRecipients"`
	Timestamp         string             `json:"timestamp"`
	FeedbackID        string             `json:"feedbackId"`
	ReportingMTA      string             `json:"reportingMTA,omitempty"`
	RemoteMtaIP       string             `json:"remoteMtaIp,omitempty"`
}

// BouncedRecipient is one recipient of a bounce.
type BouncedRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Action         string `json:"action,omitempty"`
	Status         string `json:"status,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

// Complaint is the complaint object of a Complaint notification.
type Complaint struct {
	ComplainedRecipients  []ComplainedRecipient `json:"complainedRecipients"`
	ComplaintFeedbackType string                `json:"complaintFeedbackType,omitempty"`
	ComplaintSubType      string                `json:"complaintSubType,omitempty"`
	UserAgent             string                `json:"userAgent,omitempty"`
	ArrivalDate           string                `json:"arrivalDate,omitempty"`
	Timestamp             string                `json:"timestamp"`
	FeedbackID            string                `json:"feedbackId"`
}

// ComplainedRecipient is one recipient of a complaint.
type ComplainedRecipient struct {
	EmailAddress string `json:"emailAddress"`
}

// Delivery is the delivery object of a Delivery notification. Recipients
// are plain addresses.
type Delivery struct {
	Timestamp            string   `json:"timestamp"`
	ProcessingTimeMillis int64    `json:"processingTimeMillis"`
	Recipients           []string `json:"recipients"`
	SMTPResponse         string   `json:"smtpResponse,omitempty"`
	ReportingMTA         string   `json:"reportingMTA,omitempty"`
	RemoteMtaIP          string   `json:"remoteMtaIp,omitempty"`
}
